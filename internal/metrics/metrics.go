package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarplanner_requests_total",
			Help: "Total number of HTTP requests per route and method",
		},
		[]string{"route", "method"},
	)

	RequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solarplanner_request_duration_seconds",
			Help:    "Request duration in seconds per route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	RequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarplanner_request_errors_total",
			Help: "Total number of error responses per route and status code",
		},
		[]string{"route", "code"},
	)
)

var (
	CalculationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarplanner_calculations_total",
			Help: "Engine runs per customer category",
		},
		[]string{"category"},
	)

	CalculationDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "solarplanner_calculation_duration_seconds",
			Help:    "Time spent in the calculation engine",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		},
	)

	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarplanner_cache_requests_total",
			Help: "Calculation cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	PlansRecalculatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarplanner_plans_recalculated_total",
			Help: "Stored plans re-run by the worker, by whether the result changed",
		},
		[]string{"changed"},
	)
)

// ObserveCalculation records one engine run.
func ObserveCalculation(category string, startedAt time.Time) {
	CalculationsTotal.WithLabelValues(category).Inc()
	CalculationDurationSeconds.Observe(time.Since(startedAt).Seconds())
}

// ObserveRequest records one HTTP response.
func ObserveRequest(route, method string, status int, startedAt time.Time) {
	RequestsTotal.WithLabelValues(route, method).Inc()
	RequestDurationSeconds.WithLabelValues(route).Observe(time.Since(startedAt).Seconds())
	if status >= 400 {
		RequestErrorsTotal.WithLabelValues(route, statusLabel(status)).Inc()
	}
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	}
	return "ok"
}

var (
	ScheduledJobLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "solarplanner_job_last_run_timestamp",
			Help: "Unix timestamp of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobLastDurationSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "solarplanner_job_last_duration_seconds",
			Help: "Duration of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarplanner_job_failures_total",
			Help: "Total number of failed executions per job",
		},
		[]string{"job"},
	)
)

func UpdateJobMetrics(job string, startedAt time.Time, err error) {
	dur := time.Since(startedAt).Seconds()
	ScheduledJobLastDurationSeconds.WithLabelValues(job).Set(dur)
	ScheduledJobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
	if err != nil {
		ScheduledJobFailuresTotal.WithLabelValues(job).Inc()
	}
}
