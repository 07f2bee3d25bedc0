// Package mqtt publishes decoded messages to an MQTT broker as JSON, one
// topic per message name.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kstaniek/go-canframe/internal/logging"
	"github.com/kstaniek/go-canframe/internal/message"
	"github.com/kstaniek/go-canframe/internal/metrics"
	"github.com/kstaniek/go-canframe/internal/transport"
)

var (
	ErrQueueFull = errors.New("mqtt publish queue full")
	ErrTimeout   = errors.New("mqtt publish timeout")
)

// Client is the part of paho.Client the publisher needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

type Config struct {
	Broker   string // tcp://host:1883
	ClientID string
	Username string
	Password string
	Topic    string // prefix, e.g. "canframe"
	QoS      byte
	Retain   bool
	Queue    int
	Timeout  time.Duration
}

// Connect dials the broker. Connection retries continue in the background,
// so only a definite refusal within cfg.Timeout is an error.
func Connect(cfg Config) (paho.Client, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(time.Minute)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetOnConnectHandler(func(paho.Client) {
		logging.For("mqtt").Info("mqtt_connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logging.For("mqtt").Warn("mqtt_connection_lost", "broker", cfg.Broker, "error", err)
	})
	c := paho.NewClient(opts)
	tok := c.Connect()
	if tok.WaitTimeout(cfg.Timeout) {
		if err := tok.Error(); err != nil {
			return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
		}
	} else {
		logging.For("mqtt").Warn("mqtt_connect_pending", "broker", cfg.Broker)
	}
	return c, nil
}

// Topic joins prefix and message name.
func Topic(prefix, name string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

type publication struct {
	topic   string
	payload []byte
}

// Publisher serializes messages on the caller's goroutine and hands them
// to a single worker that waits for broker acknowledgement.
type Publisher struct {
	client Client
	cfg    Config
	tx     *transport.AsyncTx[publication]
	now    func() time.Time
}

func NewPublisher(ctx context.Context, client Client, cfg Config) *Publisher {
	if cfg.Queue <= 0 {
		cfg.Queue = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	p := &Publisher{client: client, cfg: cfg, now: time.Now}
	hooks := transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrMQTTPublish)
			logging.For("mqtt").Warn("mqtt_publish_error", "error", err)
		},
		OnAfter: metrics.IncMQTTPublished,
		OnDrop: func() error {
			metrics.IncError(metrics.ErrMQTTOverflow)
			return ErrQueueFull
		},
	}
	p.tx = transport.NewAsyncTx(ctx, cfg.Queue, p.send, hooks)
	return p
}

// Publish queues m under <prefix>/<name>.
func (p *Publisher) Publish(m *message.Message) error {
	payload, err := json.Marshal(m.Record(p.now()))
	if err != nil {
		return fmt.Errorf("mqtt payload %s: %w", m.Name(), err)
	}
	return p.tx.Enqueue(publication{topic: Topic(p.cfg.Topic, m.Name()), payload: payload})
}

func (p *Publisher) send(pub publication) error {
	tok := p.client.Publish(pub.topic, p.cfg.QoS, p.cfg.Retain, pub.payload)
	if !tok.WaitTimeout(p.cfg.Timeout) {
		return fmt.Errorf("%w: %s", ErrTimeout, pub.topic)
	}
	return tok.Error()
}

// Close drains nothing: queued publications are discarded, then the client
// is disconnected.
func (p *Publisher) Close() {
	p.tx.Close()
	p.client.Disconnect(250)
}
