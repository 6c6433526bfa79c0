package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/FlorentCollin/longshot/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	FramesRx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "longshot_rx_frames_total",
		Help: "Total valid frames decoded from the device stream.",
	})
	FramesTx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "longshot_tx_frames_total",
		Help: "Total frames written to the device.",
	})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "longshot_malformed_frames_total",
		Help: "Total rejected frames (bad preamble alignment, length or checksum).",
	})
	StatusPolls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "longshot_status_polls_total",
		Help: "Total monitor requests issued by the session polling loop.",
	})
	TapDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "longshot_tap_dropped_total",
		Help: "Total driver outputs dropped on slow packet-tap subscribers.",
	})
	OrdersAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "longshot_orders_accepted_total",
		Help: "Total brew orders accepted from the message bus.",
	})
	OrdersCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "longshot_orders_completed_total",
		Help: "Total brew orders that reached a terminal notification.",
	})
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "longshot_sessions_active",
		Help: "Current number of live device sessions.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "longshot_build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "longshot_errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrBTWrite   = "bt_write"
	ErrBTScan    = "bt_scan"
	ErrPipeRead  = "pipe_read"
	ErrPipeWrite = "pipe_write"
	ErrPoll      = "status_poll"
	ErrBus       = "bus"
	ErrBusOrder  = "bus_order"
)

// StartHTTP serves Prometheus metrics at /metrics and a readiness probe at
// /ready on addr.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localFramesRx    uint64
	localFramesTx    uint64
	localMalformed   uint64
	localStatusPolls uint64
	localTapDropped  uint64
	localOrdersAcc   uint64
	localOrdersDone  uint64
	localErrors      uint64
	localSessions    int64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	FramesRx        uint64
	FramesTx        uint64
	Malformed       uint64
	StatusPolls     uint64
	TapDropped      uint64
	OrdersAccepted  uint64
	OrdersCompleted uint64
	Errors          uint64 // sum across error labels
	Sessions        int64
}

func Snap() Snapshot {
	return Snapshot{
		FramesRx:        atomic.LoadUint64(&localFramesRx),
		FramesTx:        atomic.LoadUint64(&localFramesTx),
		Malformed:       atomic.LoadUint64(&localMalformed),
		StatusPolls:     atomic.LoadUint64(&localStatusPolls),
		TapDropped:      atomic.LoadUint64(&localTapDropped),
		OrdersAccepted:  atomic.LoadUint64(&localOrdersAcc),
		OrdersCompleted: atomic.LoadUint64(&localOrdersDone),
		Errors:          atomic.LoadUint64(&localErrors),
		Sessions:        atomic.LoadInt64(&localSessions),
	}
}

// Wrapper helpers to keep call sites simple.
func IncFramesRx() {
	FramesRx.Inc()
	atomic.AddUint64(&localFramesRx, 1)
}

func IncFramesTx() {
	FramesTx.Inc()
	atomic.AddUint64(&localFramesTx, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func IncStatusPoll() {
	StatusPolls.Inc()
	atomic.AddUint64(&localStatusPolls, 1)
}

func IncTapDropped() {
	TapDropped.Inc()
	atomic.AddUint64(&localTapDropped, 1)
}

func IncOrderAccepted() {
	OrdersAccepted.Inc()
	atomic.AddUint64(&localOrdersAcc, 1)
}

func IncOrderCompleted() {
	OrdersCompleted.Inc()
	atomic.AddUint64(&localOrdersDone, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// AddSession adjusts the live-session gauge by delta (+1/-1).
func AddSession(delta int) {
	SessionsActive.Add(float64(delta))
	atomic.AddInt64(&localSessions, int64(delta))
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register common error label series so first error does not log a registration latency.
	for _, lbl := range []string{
		ErrBTWrite, ErrBTScan, ErrPipeRead, ErrPipeWrite, ErrPoll, ErrBus, ErrBusOrder,
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
