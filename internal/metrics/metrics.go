// Package metrics records deployment progress as Prometheus metrics.
//
// A deployment is a short-lived process, so metrics live in a private
// registry and are pushed to a Pushgateway at the end of the run instead
// of being scraped.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Step outcomes.
const (
	StepDeployed = "deployed"
	StepSkipped  = "skipped"
	StepFailed   = "failed"
	StepRetried  = "retried"
)

// Recorder holds the metrics of one process.
type Recorder struct {
	registry *prometheus.Registry

	stepsTotal      *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
	stepGasUsed     *prometheus.GaugeVec
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.GaugeVec
	lastSuccessTime *prometheus.GaugeVec
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		stepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pooldeploy_steps_total",
				Help: "Deployment steps by outcome",
			},
			[]string{"step", "outcome"},
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pooldeploy_step_duration_seconds",
				Help:    "Time from step start to confirmation",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"step"},
		),
		stepGasUsed: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pooldeploy_step_gas_used",
				Help: "Gas used by the step's transaction",
			},
			[]string{"step"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pooldeploy_runs_total",
				Help: "Deployment runs by network and status",
			},
			[]string{"network", "status"},
		),
		runDuration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pooldeploy_run_duration_seconds",
				Help: "Duration of the last run",
			},
			[]string{"network"},
		),
		lastSuccessTime: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pooldeploy_last_success_timestamp_seconds",
				Help: "Unix time of the last successful run",
			},
			[]string{"network"},
		),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveStep records one step outcome.
func (r *Recorder) ObserveStep(step, outcome string, d time.Duration, gasUsed uint64) {
	r.stepsTotal.WithLabelValues(step, outcome).Inc()
	if outcome != StepDeployed {
		return
	}
	r.stepDuration.WithLabelValues(step).Observe(d.Seconds())
	if gasUsed > 0 {
		r.stepGasUsed.WithLabelValues(step).Set(float64(gasUsed))
	}
}

// ObserveRun records the end of a run.
func (r *Recorder) ObserveRun(network, status string, d time.Duration) {
	r.runsTotal.WithLabelValues(network, status).Inc()
	r.runDuration.WithLabelValues(network).Set(d.Seconds())
	if status == "completed" {
		r.lastSuccessTime.WithLabelValues(network).SetToCurrentTime()
	}
}

// Push sends all metrics to a Pushgateway, grouped by network.
func (r *Recorder) Push(ctx context.Context, url, job, network string) error {
	err := push.New(url, job).
		Gatherer(r.registry).
		Grouping("network", network).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
