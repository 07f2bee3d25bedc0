package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kstaniek/go-canframe/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	FramesEncoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canframe_frames_encoded_total",
		Help: "Total messages encoded into bus frames.",
	})
	FramesDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canframe_frames_decoded_total",
		Help: "Total bus frames decoded against a known message.",
	})
	UnknownFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canframe_unknown_frames_total",
		Help: "Total bus frames whose id is not in the database.",
	})
	RangeRejects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canframe_range_rejects_total",
		Help: "Total signal writes refused because the value was out of range.",
	})
	SerialRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_rx_frames_total",
		Help: "Total CAN frames decoded from the serial link.",
	})
	SocketCANRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socketcan_rx_frames_total",
		Help: "Total CAN frames read from the SocketCAN interface.",
	})
	SerialTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_tx_frames_total",
		Help: "Total CAN frames written to the serial link.",
	})
	SocketCANTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socketcan_tx_frames_total",
		Help: "Total CAN frames written to the SocketCAN interface.",
	})
	MQTTPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mqtt_published_total",
		Help: "Total decoded messages published to the MQTT broker.",
	})
	HubSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_subscribers",
		Help: "Current number of frame subscribers.",
	})
	HubDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_drops_total",
		Help: "Frames dropped for a full subscriber.",
	})
	HubKicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_kicks_total",
		Help: "Subscribers closed because their queue was full.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total rejected malformed serial frames (bad checksum, invalid length, truncated).",
	})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrSerialWrite    = "serial_write"
	ErrSerialOverflow = "serial_tx_overflow"
	ErrSocketCANWrite = "socketcan_write"
	ErrSocketCANOver  = "socketcan_tx_overflow"
	ErrSerialRead     = "serial_read"
	ErrSocketCANRead  = "socketcan_read"
	ErrMQTTPublish    = "mqtt_publish"
	ErrMQTTOverflow   = "mqtt_queue_overflow"
	ErrDecode         = "decode"
)

// Route mounts an extra handler next to /metrics.
type Route struct {
	Pattern string
	Handler http.Handler
}

// Handler serves Prometheus metrics at /metrics, readiness at /ready and
// any extra routes.
func Handler(routes ...Route) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	for _, r := range routes {
		mux.Handle(r.Pattern, r.Handler)
	}
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})
	return mux
}

// StartHTTP serves Handler(routes...) on addr in the background.
func StartHTTP(addr string, routes ...Route) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(routes...),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logging.For("metrics").Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.For("metrics").Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localEncoded     atomic.Uint64
	localDecoded     atomic.Uint64
	localUnknown     atomic.Uint64
	localRange       atomic.Uint64
	localSerialRx    atomic.Uint64
	localSerialTx    atomic.Uint64
	localSocketCANRx atomic.Uint64
	localSocketCANTx atomic.Uint64
	localMQTT        atomic.Uint64
	localErrors      atomic.Uint64
	localMalformed   atomic.Uint64
	localHubDrops    atomic.Uint64
	localHubKicks    atomic.Uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	Encoded      uint64
	Decoded      uint64
	Unknown      uint64
	RangeRejects uint64
	SerialRx     uint64
	SerialTx     uint64
	SocketCANRx  uint64
	SocketCANTx  uint64
	MQTT         uint64
	Errors       uint64 // sum across error labels
	Malformed    uint64
	HubDrops     uint64
	HubKicks     uint64
}

func Snap() Snapshot {
	return Snapshot{
		Encoded:      localEncoded.Load(),
		Decoded:      localDecoded.Load(),
		Unknown:      localUnknown.Load(),
		RangeRejects: localRange.Load(),
		SerialRx:     localSerialRx.Load(),
		SerialTx:     localSerialTx.Load(),
		SocketCANRx:  localSocketCANRx.Load(),
		SocketCANTx:  localSocketCANTx.Load(),
		MQTT:         localMQTT.Load(),
		Errors:       localErrors.Load(),
		Malformed:    localMalformed.Load(),
		HubDrops:     localHubDrops.Load(),
		HubKicks:     localHubKicks.Load(),
	}
}

// Wrapper helpers to keep call sites simple.
func IncEncoded() {
	FramesEncoded.Inc()
	localEncoded.Add(1)
}

func IncDecoded() {
	FramesDecoded.Inc()
	localDecoded.Add(1)
}

func IncUnknown() {
	UnknownFrames.Inc()
	localUnknown.Add(1)
}

// IncRangeReject counts a refused signal write.
func IncRangeReject() {
	RangeRejects.Inc()
	localRange.Add(1)
}

func IncSerialRx() {
	SerialRxFrames.Inc()
	localSerialRx.Add(1)
}

// IncSocketCANRx increments SocketCAN receive counters.
func IncSocketCANRx() {
	SocketCANRxFrames.Inc()
	localSocketCANRx.Add(1)
}

func IncSerialTx() {
	SerialTxFrames.Inc()
	localSerialTx.Add(1)
}

// IncSocketCANTx increments SocketCAN transmit counters.
func IncSocketCANTx() {
	SocketCANTxFrames.Inc()
	localSocketCANTx.Add(1)
}

func IncMQTTPublished() {
	MQTTPublished.Inc()
	localMQTT.Add(1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	localErrors.Add(1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	localMalformed.Add(1)
}

func IncHubDrop() {
	HubDrops.Inc()
	localHubDrops.Add(1)
}

func IncHubKick() {
	HubKicks.Inc()
	localHubKicks.Add(1)
}

func SetHubSubscribers(n int) { HubSubscribers.Set(float64(n)) }

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register common error label series so first error does not log a registration latency.
	for _, lbl := range []string{
		ErrSerialWrite, ErrSerialOverflow, ErrSerialRead,
		ErrSocketCANWrite, ErrSocketCANOver, ErrSocketCANRead,
		ErrMQTTPublish, ErrMQTTOverflow, ErrDecode,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}
