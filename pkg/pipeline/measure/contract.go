package measure

import "time"

// Measure collects one Metric per pipeline stage.
type Measure interface {
	// AddMetric returns the metric of the stage, creating it on first use.
	AddMetric(name string) Metric
	// GetMetric returns the metric of the stage, nil when unknown.
	GetMetric(name string) Metric
	AllMetrics() map[string]Metric
}

// Metric aggregates timings and acceptance counts of one stage.
type Metric interface {
	AddDuration(elapsed time.Duration)
	AVGDuration() time.Duration
	Runs() int64
	SetTotalDuration(endDuration time.Duration)
	GetTotalDuration() time.Duration
	// AddTrial records one Monte Carlo trial and whether it was accepted.
	AddTrial(accepted bool)
	Trials() int64
	AcceptanceRate() float64
}
