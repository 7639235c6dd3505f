// Package metrics holds the Prometheus collectors of the tracking daemon.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zksecurity/zkvm-benchmarks/pkg/lib"
)

const (
	namespace = "memtrack"

	// OutcomeLabel is the termination outcome of a run ("exited",
	// "signaled", "launch_failed") or "error" when no usage was produced.
	OutcomeLabel = "outcome"
	// JobStateLabel is a lib.JobState name.
	JobStateLabel = "state"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tracker",
		Name:      "runs_total",
		Help:      "Number of tracked runs, by termination outcome.",
	}, []string{
		OutcomeLabel,
	})

	PeakMemoryBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "tracker",
		Name:      "peak_memory_bytes",
		Buckets:   prometheus.ExponentialBuckets(1<<20, 2, 16),
		Help:      "Peak memory of each tracked run with the baseline subtracted, in bytes.",
	})

	RunDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "tracker",
		Name:      "run_duration_seconds",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		Help:      "Wall time from launch to termination of each tracked run, in seconds.",
	})

	OOMKillsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tracker",
		Name:      "oom_kills_total",
		Help:      "Number of processes killed by the memory ceiling of a run's group.",
	})

	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "daemon",
		Name:      "jobs_total",
		Help:      "Number of daemon jobs that reached a final state, by state.",
	}, []string{
		JobStateLabel,
	})
)

// RegisterGuardWaiters exports the number of callers blocked on the
// concurrency guard. Calling it more than once keeps the first registration.
func RegisterGuardWaiters(waiting func() int) {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "tracker",
		Name:      "guard_waiters",
		Help:      "Number of runs waiting for the concurrency guard.",
	}, func() float64 { return float64(waiting()) })
	// A second registration fails with AlreadyRegisteredError and is ignored.
	_ = prometheus.Register(g)
}

// ObserveRun records the result of one tracked run. usage may be nil when the
// run failed before anything was measured.
func ObserveRun(usage *lib.MemoryUsage) {
	if usage == nil {
		RunsTotal.WithLabelValues("error").Inc()
		return
	}
	RunsTotal.WithLabelValues(usage.Result.Kind.String()).Inc()
	if usage.Result.Kind == lib.OutcomeLaunchFailed {
		return
	}
	PeakMemoryBytes.Observe(float64(usage.Peak))
	RunDurationSeconds.Observe(usage.Duration.Seconds())
	if usage.OOMKills > 0 {
		OOMKillsTotal.Add(float64(usage.OOMKills))
	}
}


// RegisterMonitoringHandlers serves the default registry on /metrics.
func RegisterMonitoringHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorHandling: promhttp.HTTPErrorOnError,
		}),
	))
}
