package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the worker's collectors on a private prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	// Capture pipeline
	CaptureLatencySec prometheus.Histogram
	FinalConfidence   prometheus.Histogram
	CaptureFailures   prometheus.Counter
	FramesSuperseded  prometheus.Counter

	// Sync
	PushSucceeded  prometheus.Counter
	PushFailed     prometheus.Counter
	PullInserted   prometheus.Counter
	PullOverwrote  prometheus.Counter
	CycleOutcomes  *prometheus.CounterVec
	RemoteMirrored prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sirim_capture_latency_seconds",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})
	confidence := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sirim_capture_final_confidence",
		Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
	})
	captureFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "sirim_capture_failures_total"})
	superseded := prometheus.NewCounter(prometheus.CounterOpts{Name: "sirim_frames_superseded_total"})

	pushOK := prometheus.NewCounter(prometheus.CounterOpts{Name: "sirim_sync_push_succeeded_total"})
	pushFailed := prometheus.NewCounter(prometheus.CounterOpts{Name: "sirim_sync_push_failed_total"})
	pullInserted := prometheus.NewCounter(prometheus.CounterOpts{Name: "sirim_sync_pull_inserted_total"})
	pullOverwrote := prometheus.NewCounter(prometheus.CounterOpts{Name: "sirim_sync_pull_overwritten_total"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "sirim_sync_cycles_total"}, []string{"outcome"})
	mirrored := prometheus.NewCounter(prometheus.CounterOpts{Name: "sirim_sync_remote_mirrored_total"})

	r.MustRegister(latency, confidence, captureFailures, superseded,
		pushOK, pushFailed, pullInserted, pullOverwrote, outcomes, mirrored)
	return &Registry{
		reg:               r,
		CaptureLatencySec: latency,
		FinalConfidence:   confidence,
		CaptureFailures:   captureFailures,
		FramesSuperseded:  superseded,
		PushSucceeded:     pushOK,
		PushFailed:        pushFailed,
		PullInserted:      pullInserted,
		PullOverwrote:     pullOverwrote,
		CycleOutcomes:     outcomes,
		RemoteMirrored:    mirrored,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
