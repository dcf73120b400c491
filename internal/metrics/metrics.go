// Package metrics defines the Prometheus collectors shared by the doppler
// probe tools. One-shot tools only touch these when -metrics is set; the
// collectors themselves are cheap enough to register unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ValidationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "validation_errors_total",
		Help: "Total number of validation errors",
	}, []string{"operation", "error_type"})

	NumericalInstability = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "numerical_instability_total",
		Help: "Total number of NaN/Inf values detected",
	}, []string{"tensor", "type"})

	// RoPE check metrics
	RoPEDeviation = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rope_deviation",
		Help:    "RoPE deviation from reference",
		Buckets: []float64{0, 0.001, 0.01, 0.05, 0.1, 0.5, 1.0},
	})

	RoPEPass = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rope_pass_total",
		Help: "Count of passing RoPE deviation checks",
	})

	RoPEFail = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rope_fail_total",
		Help: "Count of failing RoPE deviation checks",
	})

	// Activation probe metrics
	ProbeInspections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doppler_probe_inspections_total",
		Help: "Total number of activation inspections performed",
	}, []string{"tool"})

	ProbeOutOfRange = promauto.NewCounter(prometheus.CounterOpts{
		Name: "doppler_probe_out_of_range_total",
		Help: "Count of requested layers or positions outside the captured range",
	})

	ActivationMaxAbs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "doppler_activation_max_abs",
		Help:    "Max absolute activation value per inspected (layer, position)",
		Buckets: []float64{0, 0.1, 0.5, 1, 2, 5, 10, 20, 50, 100, 500},
	})

	// Snapshot metrics
	SnapshotLoadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "doppler_snapshot_load_duration_seconds",
		Help:    "Time to decode an activation snapshot",
		Buckets: prometheus.DefBuckets,
	}, []string{"codec"})

	SnapshotTensors = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "doppler_snapshot_tensors",
		Help:    "Number of tensors per decoded snapshot",
		Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000},
	})

	// Flight fetch metrics
	FlightFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "doppler_flight_fetch_duration_seconds",
		Help:    "Time to pull an activation snapshot over Arrow Flight",
		Buckets: prometheus.DefBuckets,
	})

	FlightFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "doppler_flight_fetch_errors_total",
		Help: "Count of failed Arrow Flight snapshot fetches",
	})

	// Benchmark ratchet metrics
	BenchRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "doppler_bench_run_duration_seconds",
		Help:    "Wall time of one benchmark subprocess run",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	BenchFirstTokenMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "doppler_bench_first_token_ms",
		Help:    "First token latency scraped from benchmark output",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})

	BenchTokensPerS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "doppler_bench_tokens_per_s",
		Help:    "Decode throughput scraped from benchmark output",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500},
	})

	BenchMissingMetrics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doppler_bench_missing_metrics_total",
		Help: "Count of benchmark runs whose output lacked a metric",
	}, []string{"metric"})

	BenchNonZeroExit = promauto.NewCounter(prometheus.CounterOpts{
		Name: "doppler_bench_nonzero_exit_total",
		Help: "Count of benchmark subprocesses that exited non-zero",
	})
)

func RecordValidationError(operation, errorType string) {
	ValidationErrors.WithLabelValues(operation, errorType).Inc()
}

func RecordNumericalInstability(name string, nanCount, infCount int) {
	if nanCount > 0 {
		NumericalInstability.WithLabelValues(name, "nan").Add(float64(nanCount))
	}
	if infCount > 0 {
		NumericalInstability.WithLabelValues(name, "inf").Add(float64(infCount))
	}
}

// RecordRoPECheck records the outcome of one RoPE reference comparison.
func RecordRoPECheck(maxDeviation float64, passed bool) {
	RoPEDeviation.Observe(maxDeviation)
	if passed {
		RoPEPass.Inc()
	} else {
		RoPEFail.Inc()
	}
}

// RecordInspection records one (layer, position) activation inspection.
func RecordInspection(tool string, maxAbs float64, outOfRange bool) {
	ProbeInspections.WithLabelValues(tool).Inc()
	if outOfRange {
		ProbeOutOfRange.Inc()
		return
	}
	ActivationMaxAbs.Observe(maxAbs)
}

// RecordSnapshotLoad records a snapshot decode. Codec is "json" or "arrow".
func RecordSnapshotLoad(codec string, tensors int, duration time.Duration) {
	SnapshotLoadDuration.WithLabelValues(codec).Observe(duration.Seconds())
	SnapshotTensors.Observe(float64(tensors))
}

func RecordFlightFetch(duration time.Duration, err error) {
	if err != nil {
		FlightFetchErrors.Inc()
		return
	}
	FlightFetchDuration.Observe(duration.Seconds())
}

// RecordBenchRun records one benchmark subprocess run and the metrics
// scraped from its output. Nil metric pointers count as missing.
func RecordBenchRun(duration time.Duration, returnCode int, firstTokenMs, tokensPerS *float64) {
	BenchRunDuration.Observe(duration.Seconds())
	if returnCode != 0 {
		BenchNonZeroExit.Inc()
	}
	if firstTokenMs != nil {
		BenchFirstTokenMs.Observe(*firstTokenMs)
	} else {
		BenchMissingMetrics.WithLabelValues("first_token_ms").Inc()
	}
	if tokensPerS != nil {
		BenchTokensPerS.Observe(*tokensPerS)
	} else {
		BenchMissingMetrics.WithLabelValues("tokens_per_s").Inc()
	}
}
