package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kstaniek/go-canframe/internal/hub"
	"github.com/kstaniek/go-canframe/internal/logging"
)

type appConfig struct {
	dbcPath string
	mode    string

	// encode
	message  string
	set      string
	send     bool
	count    int
	interval time.Duration

	// decode
	id       string
	extended bool
	data     string

	backend      string
	canIf        string
	serialDev    string
	baud         int
	serialReadTO time.Duration
	serialStdIDs bool

	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
	hubBuffer       int
	hubPolicy       string
	quiet           bool

	mqttBroker   string
	mqttTopic    string
	mqttClientID string
	mqttUser     string
	mqttPassword string
	mqttQoS      int
	mqttRetain   bool

	mdnsEnable bool
	mdnsName   string
}

// parseFlags parses args into a validated config. The bool result reports
// -version.
func parseFlags(args []string, stderr io.Writer) (*appConfig, bool, error) {
	fs := flag.NewFlagSet("canframe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg := &appConfig{}
	fs.StringVar(&cfg.dbcPath, "dbc", "", "DBC database file (required)")
	fs.StringVar(&cfg.mode, "mode", "decode", "Mode: encode|decode|monitor")
	fs.StringVar(&cfg.message, "message", "", "Message name (encode)")
	fs.StringVar(&cfg.set, "set", "", "Signal assignments, e.g. \"Enable=1,Temperature=251.5\" (encode)")
	fs.BoolVar(&cfg.send, "send", false, "Transmit the encoded frame through the backend (encode)")
	fs.IntVar(&cfg.count, "count", 1, "Number of transmissions with -send")
	fs.DurationVar(&cfg.interval, "interval", 0, "Transmit interval with -send (default: message cycle time, else 100ms)")
	fs.StringVar(&cfg.id, "id", "", "Frame id, e.g. 0x1F0 (decode)")
	fs.BoolVar(&cfg.extended, "extended", false, "Treat -id as a 29-bit id even when it fits 11 bits (decode)")
	fs.StringVar(&cfg.data, "data", "", "Payload in hex (decode)")
	fs.StringVar(&cfg.backend, "backend", "socketcan", "CAN backend: serial|socketcan")
	fs.StringVar(&cfg.canIf, "can-if", "can0", "SocketCAN interface (when -backend=socketcan)")
	fs.StringVar(&cfg.serialDev, "serial", "/dev/ttyUSB0", "Serial device path")
	fs.IntVar(&cfg.baud, "baud", 115200, "Serial baud rate")
	fs.DurationVar(&cfg.serialReadTO, "serial-read-timeout", 50*time.Millisecond, "Serial read timeout")
	fs.BoolVar(&cfg.serialStdIDs, "serial-std-ids", false, "Deliver serial ids that fit 11 bits as standard frames")
	fs.StringVar(&cfg.logFormat, "log-format", "text", "Log format: text|json")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Metrics and live feed HTTP listen address (e.g., :9100); empty disables")
	fs.DurationVar(&cfg.logMetricsEvery, "log-metrics-interval", 0, "If >0, periodically log metrics counters")
	fs.IntVar(&cfg.hubBuffer, "hub-buffer", 512, "Per-subscriber frame buffer (monitor)")
	fs.StringVar(&cfg.hubPolicy, "hub-policy", "drop", "Backpressure policy: drop|kick")
	fs.BoolVar(&cfg.quiet, "quiet", false, "Do not print decoded messages (monitor)")
	fs.StringVar(&cfg.mqttBroker, "mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883; empty disables")
	fs.StringVar(&cfg.mqttTopic, "mqtt-topic", "canframe", "MQTT topic prefix")
	fs.StringVar(&cfg.mqttClientID, "mqtt-client-id", "", "MQTT client id (default canframe-<hostname>)")
	fs.StringVar(&cfg.mqttUser, "mqtt-user", "", "MQTT username")
	fs.StringVar(&cfg.mqttPassword, "mqtt-password", "", "MQTT password")
	fs.IntVar(&cfg.mqttQoS, "mqtt-qos", 0, "MQTT QoS: 0|1|2")
	fs.BoolVar(&cfg.mqttRetain, "mqtt-retain", false, "Publish retained MQTT messages")
	fs.BoolVar(&cfg.mdnsEnable, "mdns-enable", false, "Advertise the metrics endpoint via mDNS (monitor)")
	fs.StringVar(&cfg.mdnsName, "mdns-name", "", "mDNS instance name (default canframe-<hostname>)")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}
	if *showVersion {
		return cfg, true, nil
	}

	// Explicit flags take precedence over the environment.
	setFlags := map[string]struct{}{}
	fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		return nil, false, fmt.Errorf("environment override error: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, false, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, false, nil
}

// validate checks values and ranges only; it does not open devices or files.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if c.dbcPath == "" {
		return errors.New("dbc is required")
	}
	if _, err := logging.ParseFormat(c.logFormat); err != nil {
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	if _, err := logging.ParseLevel(c.logLevel); err != nil {
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.backend {
	case "serial", "socketcan":
	default:
		return fmt.Errorf("invalid backend: %s", c.backend)
	}
	if _, ok := hub.ParsePolicy(c.hubPolicy); !ok {
		return fmt.Errorf("invalid hub-policy: %s", c.hubPolicy)
	}
	if c.hubBuffer <= 0 {
		return fmt.Errorf("hub-buffer must be > 0 (got %d)", c.hubBuffer)
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.serialReadTO <= 0 {
		return fmt.Errorf("serial-read-timeout must be > 0")
	}
	if c.mqttQoS < 0 || c.mqttQoS > 2 {
		return fmt.Errorf("mqtt-qos must be 0, 1 or 2 (got %d)", c.mqttQoS)
	}
	switch c.mode {
	case "encode":
		if c.message == "" {
			return errors.New("encode needs -message")
		}
		if c.send && c.count <= 0 {
			return fmt.Errorf("count must be > 0 (got %d)", c.count)
		}
		if c.interval < 0 {
			return fmt.Errorf("interval must be >= 0")
		}
	case "decode":
		if c.id == "" {
			return errors.New("decode needs -id")
		}
		if _, err := parseID(c.id); err != nil {
			return err
		}
	case "monitor":
	default:
		return fmt.Errorf("invalid mode: %s", c.mode)
	}
	return nil
}

func parseID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 0, 32)
	if err != nil || id > 0x1FFFFFFF {
		return 0, fmt.Errorf("invalid id: %s", s)
	}
	return uint32(id), nil
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

// applyEnvOverrides maps CANFRAME_* environment variables onto fields whose
// flag was not set explicitly. Empty values are ignored; the first parse
// error is returned after all variables have been applied.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	fail := func(k string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("invalid %s: %w", k, err)
		}
	}
	lookup := func(name, key string) (string, bool) {
		if _, ok := set[name]; ok {
			return "", false
		}
		v, ok := os.LookupEnv(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	str := func(name, key string, dst *string) {
		if v, ok := lookup(name, key); ok {
			*dst = v
		}
	}
	num := func(name, key string, floor int, dst *int) {
		if v, ok := lookup(name, key); ok {
			n, err := strconv.Atoi(v)
			switch {
			case err != nil:
				fail(key, err)
			case n < floor:
				fail(key, fmt.Errorf("%d is below %d", n, floor))
			default:
				*dst = n
			}
		}
	}
	dur := func(name, key string, dst *time.Duration) {
		if v, ok := lookup(name, key); ok {
			d, err := time.ParseDuration(v)
			switch {
			case err != nil:
				fail(key, err)
			case d < 0:
				fail(key, fmt.Errorf("negative duration %s", v))
			default:
				*dst = d
			}
		}
	}
	boolean := func(name, key string, dst *bool) {
		if v, ok := lookup(name, key); ok {
			if b, ok := parseBool(v); ok {
				*dst = b
			} else {
				fail(key, fmt.Errorf("not a boolean: %q", v))
			}
		}
	}

	str("dbc", "CANFRAME_DBC", &c.dbcPath)
	str("mode", "CANFRAME_MODE", &c.mode)
	str("backend", "CANFRAME_BACKEND", &c.backend)
	str("can-if", "CANFRAME_IF", &c.canIf)
	str("serial", "CANFRAME_SERIAL", &c.serialDev)
	num("baud", "CANFRAME_BAUD", 1, &c.baud)
	dur("serial-read-timeout", "CANFRAME_SERIAL_READ_TIMEOUT", &c.serialReadTO)
	boolean("serial-std-ids", "CANFRAME_SERIAL_STD_IDS", &c.serialStdIDs)
	str("log-format", "CANFRAME_LOG_FORMAT", &c.logFormat)
	str("log-level", "CANFRAME_LOG_LEVEL", &c.logLevel)
	str("metrics-addr", "CANFRAME_METRICS", &c.metricsAddr)
	dur("log-metrics-interval", "CANFRAME_LOG_METRICS_INTERVAL", &c.logMetricsEvery)
	num("hub-buffer", "CANFRAME_HUB_BUFFER", 1, &c.hubBuffer)
	str("hub-policy", "CANFRAME_HUB_POLICY", &c.hubPolicy)
	str("mqtt-broker", "CANFRAME_MQTT_BROKER", &c.mqttBroker)
	str("mqtt-topic", "CANFRAME_MQTT_TOPIC", &c.mqttTopic)
	str("mqtt-client-id", "CANFRAME_MQTT_CLIENT_ID", &c.mqttClientID)
	str("mqtt-user", "CANFRAME_MQTT_USER", &c.mqttUser)
	str("mqtt-password", "CANFRAME_MQTT_PASSWORD", &c.mqttPassword)
	num("mqtt-qos", "CANFRAME_MQTT_QOS", 0, &c.mqttQoS)
	boolean("mqtt-retain", "CANFRAME_MQTT_RETAIN", &c.mqttRetain)
	boolean("mdns-enable", "CANFRAME_MDNS_ENABLE", &c.mdnsEnable)
	str("mdns-name", "CANFRAME_MDNS_NAME", &c.mdnsName)
	return firstErr
}
