package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/grandcat/zeroconf"
)

// mdnsServiceType advertises the metrics and live feed endpoint.
const mdnsServiceType = "_canframe._tcp"

func mdnsInstance(cfg *appConfig) string {
	if cfg.mdnsName != "" {
		return cfg.mdnsName
	}
	host, _ := os.Hostname()
	return "canframe-" + host
}

// mdnsTXT lets a browser find the feed and tell which database decodes it.
func mdnsTXT(cfg *appConfig) []string {
	return []string{
		"backend=" + cfg.backend,
		"dbc=" + filepath.Base(cfg.dbcPath),
		"feed=" + feedPath,
		"version=" + version,
		"commit=" + commit,
	}
}

// startMDNS registers the service and returns a cleanup function. The
// registration is also withdrawn when ctx ends.
func startMDNS(ctx context.Context, cfg *appConfig, port int) (func(), error) {
	if port <= 0 {
		return nil, fmt.Errorf("mdns: no port in %q", cfg.metricsAddr)
	}
	svc, err := zeroconf.Register(mdnsInstance(cfg), mdnsServiceType, "local.", port, mdnsTXT(cfg), nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stopped:
		}
		svc.Shutdown()
	}()
	// give the goodbye packets a moment before the process exits
	return func() { close(stopped); time.Sleep(50 * time.Millisecond) }, nil
}
