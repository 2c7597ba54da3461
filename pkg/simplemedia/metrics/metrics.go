package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/transcode"
)

const (
	namespace = "simplemedia"
)

// Recorder exposes engine counters as Prometheus metrics
type Recorder struct {
	ingests           *prometheus.CounterVec
	ingestBytes       prometheus.Counter
	quotaAdjustments  *prometheus.CounterVec
	linkRefreshes     prometheus.Counter
	transcodes        *prometheus.CounterVec
	transcodeDuration prometheus.Histogram
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
}

var (
	_ simplemedia.Metrics = (*Recorder)(nil)
	_ transcode.Metrics   = (*Recorder)(nil)
)

// New registers the collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		ingests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "total",
			Help:      "Total ingestions by terminal status",
		}, []string{"status"}),
		ingestBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "bytes_total",
			Help:      "Total bytes stored by completed ingestions",
		}),
		quotaAdjustments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quota",
			Name:      "adjustments_total",
			Help:      "Total used-bytes adjustments",
		}, []string{"status"}),
		linkRefreshes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "link_refreshes_total",
			Help:      "Total delivery links re-signed on read",
		}),
		transcodes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transcode",
			Name:      "jobs_total",
			Help:      "Total transcode jobs by status and last stage",
		}, []string{"status", "stage"}),
		transcodeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transcode",
			Name:      "duration_seconds",
			Help:      "Transcode job duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"method", "route"}),
	}
}

func (r *Recorder) IngestFinished(status string, bytes int64) {
	r.ingests.WithLabelValues(status).Inc()
	if status == "ok" && bytes > 0 {
		r.ingestBytes.Add(float64(bytes))
	}
}

func (r *Recorder) QuotaAdjusted(status string) {
	r.quotaAdjustments.WithLabelValues(status).Inc()
}

func (r *Recorder) LinkRefreshed() {
	r.linkRefreshes.Inc()
}

func (r *Recorder) TranscodeFinished(status, stage string, elapsed time.Duration) {
	r.transcodes.WithLabelValues(status, stage).Inc()
	r.transcodeDuration.Observe(elapsed.Seconds())
}

// Middleware counts requests by their chi route pattern
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		route := "unmatched"
		if rc := chi.RouteContext(req.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.requests.WithLabelValues(req.Method, route, strconv.Itoa(status)).Inc()
		r.requestDuration.WithLabelValues(req.Method, route).Observe(time.Since(start).Seconds())
	})
}
