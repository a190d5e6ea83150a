package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/paraita/dspot/types"
)

const (
	MetricsNamespace = "dspot"
)

var (
	Debug                bool = true
	validOutcomes             = []types.OutcomeStatus{types.OutcomePassed, types.OutcomeFailed, types.OutcomeErrored, types.OutcomeSkipped}
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
		Help:      "Count of test outcomes",
	}, []string{
		"class",
		"status",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_total",
		Help:      "Count of execution runs by terminal status",
	}, []string{
		"status",
	})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of execution runs",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{
		"status",
	})

	runBudget = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_budget_seconds",
		Help:      "Budget granted to the most recent run",
	})

	unobservedTests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "unobserved_tests_total",
		Help:      "Planned tests without an outcome when their run ended",
	})

	selectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "selection_candidates_total",
		Help:      "Candidates seen and kept by selection strategies",
	}, []string{
		"strategy",
		"stage",
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

func RecordOutcome(class string, status types.OutcomeStatus) {
	if !slices.Contains(validOutcomes, status) {
		log.Error("RecordOutcome - invalid status", "status", status)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "outcomes_total",
			"class", class,
			"status", status)
	}
	outcomesTotal.WithLabelValues(class, string(status)).Inc()
}

// RecordRun records the aggregate of a finished run
func RecordRun(report *types.ExecutionReport) {
	status := string(report.Status)
	runsTotal.WithLabelValues(status).Inc()
	runDuration.WithLabelValues(status).Observe(report.Duration.Seconds())
	runBudget.Set(report.Budget.Seconds())
	if missing := report.Planned - report.Counts.Total; missing > 0 {
		unobservedTests.Add(float64(missing))
	}
	for _, o := range report.Outcomes {
		RecordOutcome(o.Class, o.Status)
	}
}

func RecordSelection(strategy string, in, out int) {
	selectionsTotal.WithLabelValues(strategy, "in").Add(float64(in))
	selectionsTotal.WithLabelValues(strategy, "out").Add(float64(out))
}
