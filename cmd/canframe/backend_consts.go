package main

import (
	"time"

	"github.com/cenkalti/backoff"
)

const (
	txQueueSize       = 1024 // capacity of async TX queue
	serialReadBufSize = 4096 // per read() buffer for serial backend
	// largeBufferReclaimThreshold is the capacity above which the serial RX
	// accumulation buffer is reallocated once drained.
	largeBufferReclaimThreshold = 16 * 1024
	rxBackoffMin                = 20 * time.Millisecond
	rxBackoffMax                = 500 * time.Millisecond

	defaultSendInterval = 100 * time.Millisecond
	flushTimeout        = 2 * time.Second
)

// newRxBackoff doubles from rxBackoffMin up to rxBackoffMax and never gives up.
func newRxBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rxBackoffMin
	b.MaxInterval = rxBackoffMax
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
