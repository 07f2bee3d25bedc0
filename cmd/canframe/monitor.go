package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/kstaniek/go-canframe/internal/feed"
	"github.com/kstaniek/go-canframe/internal/hub"
	"github.com/kstaniek/go-canframe/internal/message"
	"github.com/kstaniek/go-canframe/internal/metrics"
	"github.com/kstaniek/go-canframe/internal/mqtt"
)

// feedPath serves the websocket stream of decoded messages next to /metrics.
const feedPath = "/feed"

// publisher is satisfied by *mqtt.Publisher.
type publisher interface {
	Publish(*message.Message) error
}

// connectMQTT is a hook for tests.
var connectMQTT = func(ctx context.Context, cfg mqtt.Config) (publisher, func(), error) {
	c, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	p := mqtt.NewPublisher(ctx, c, cfg)
	return p, p.Close, nil
}

func mqttConfig(cfg *appConfig) mqtt.Config {
	id := cfg.mqttClientID
	if id == "" {
		host, _ := os.Hostname()
		id = "canframe-" + host
	}
	return mqtt.Config{
		Broker:   cfg.mqttBroker,
		ClientID: id,
		Username: cfg.mqttUser,
		Password: cfg.mqttPassword,
		Topic:    cfg.mqttTopic,
		QoS:      byte(cfg.mqttQoS),
		Retain:   cfg.mqttRetain,
		Queue:    cfg.hubBuffer,
	}
}

// runMonitor decodes received frames until ctx ends or the backend fails.
func runMonitor(ctx context.Context, cfg *appConfig, cat *message.Catalog, out io.Writer, l *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	policy, _ := hub.ParsePolicy(cfg.hubPolicy)
	h := hub.New()
	h.Policy = policy
	l.Info("hub_config", "policy", policy.String(), "buffer", cfg.hubBuffer)

	var pub publisher
	if cfg.mqttBroker != "" {
		p, closePub, err := connectMQTT(gctx, mqttConfig(cfg))
		if err != nil {
			return err
		}
		defer closePub()
		pub = p
		l.Info("mqtt_enabled", "broker", cfg.mqttBroker, "topic", cfg.mqttTopic)
	}

	d := &decoder{hub: h, cat: cat, out: out, pub: pub, quiet: cfg.quiet, buf: cfg.hubBuffer, l: l}
	d.subscribe()
	g.Go(func() error { return d.run(gctx) })

	_, cleanup, err := initBackend(gctx, cfg, h, l, g)
	if err != nil {
		cancel()
		_ = g.Wait()
		return err
	}
	startMetricsLogger(gctx, cfg.logMetricsEvery, l, g)
	metrics.SetReadinessFunc(func() bool { return gctx.Err() == nil })

	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srv := metrics.StartHTTP(cfg.metricsAddr, metrics.Route{Pattern: feedPath, Handler: feed.New(h, cat, cfg.hubBuffer)})
		defer func() { _ = srv.Shutdown(context.Background()) }()
		if cfg.mdnsEnable {
			port := portOf(cfg.metricsAddr)
			stop, err := startMDNS(gctx, cfg, port)
			if err != nil {
				l.Warn("mdns_start_failed", "error", err)
			} else {
				l.Info("mdns_started", "service", mdnsServiceType, "port", port)
				defer stop()
			}
		}
	}

	<-gctx.Done()
	l.Info("monitor_stopping")
	cancel()
	cleanup()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func portOf(addr string) int {
	if _, p, err := net.SplitHostPort(addr); err == nil {
		if n, err := strconv.Atoi(p); err == nil {
			return n
		}
	}
	return 0
}

// decoder is the hub subscriber that turns frames into messages.
type decoder struct {
	hub   *hub.Hub
	cat   *message.Catalog
	out   io.Writer
	pub   publisher
	quiet bool
	buf   int
	l     *slog.Logger
	sub   *hub.Subscriber
}

func (d *decoder) subscribe() {
	d.sub = hub.NewSubscriber("decoder", d.buf)
	d.hub.Add(d.sub)
}

// run owns d.sub once started and unsubscribes on return.
func (d *decoder) run(ctx context.Context) error {
	defer func() { d.hub.Remove(d.sub) }()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.sub.Closed:
			if ctx.Err() != nil {
				return nil
			}
			// kicked for falling behind; start over with an empty queue
			d.l.Warn("decoder_resubscribe")
			d.hub.Remove(d.sub)
			d.subscribe()
		case fr := <-d.sub.Out:
			m, err := d.cat.Decode(fr)
			if err != nil {
				continue
			}
			if !d.quiet {
				fmt.Fprintf(d.out, "%s  %s\n", m.Frame(), m)
			}
			if d.pub != nil {
				if err := d.pub.Publish(m); err != nil {
					d.l.Debug("publish_dropped", "message", m.Name(), "error", err)
				}
			}
		}
	}
}
