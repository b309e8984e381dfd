package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-runtest/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "runtest"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "outcomes_total",
		Help:      "Count of classified test attempts",
	}, []string{
		"mode",
		"status",
	})

	attemptDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "attempt_duration_seconds",
		Help:      "Execution time of test attempts",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{
		"status",
	})

	compressionRatio = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "compression_ratio",
		Help:      "Achieved output compression ratio",
		Buckets:   []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1, 1.5},
	})

	rerunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "reruns_total",
		Help:      "Count of scheduled run-until-fail restarts",
	})

	stopTimePassed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "stop_time_passed",
		Help:      "Set to 1 once the stop time has been passed",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of a run",
	}, []string{
		"run_id",
		"result",
	})

	runTests = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_tests",
		Help:      "Test counts of a run",
	}, []string{
		"run_id",
		"kind",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration",
		Help:      "Duration of a run in seconds",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordOutcome counts one classified attempt.
func RecordOutcome(mode string, status types.Status, elapsed time.Duration) {
	if !status.IsValid() {
		log.Error("RecordOutcome - invalid status", "status", status)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "outcomes_total",
			"mode", mode,
			"status", status)
	}
	outcomesTotal.WithLabelValues(mode, string(status)).Inc()
	attemptDuration.WithLabelValues(string(status)).Observe(elapsed.Seconds())
}

func RecordCompression(ratio float64) {
	compressionRatio.Observe(ratio)
}

func RecordRerun() {
	rerunsTotal.Inc()
}

func RecordStopTimePassed() {
	stopTimePassed.Set(1)
}

func RecordRun(runID string, result string, total, passed, failed, notRun int, duration time.Duration) {
	runResults.WithLabelValues(runID, result).Set(1)
	runTests.WithLabelValues(runID, "total").Set(float64(total))
	runTests.WithLabelValues(runID, "passed").Set(float64(passed))
	runTests.WithLabelValues(runID, "failed").Set(float64(failed))
	runTests.WithLabelValues(runID, "not_run").Set(float64(notRun))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}
