package protocol

import (
	"log/slog"
	"sync"

	"github.com/askiada/go-looprelax/pkg/pipeline/measure"
	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/region"
	"github.com/askiada/go-looprelax/pkg/pipeline/rmsd"
)

// Step describes one Metropolis step once its outcome is known.
type Step struct {
	Index       int
	Outer       int
	Inner       int
	Temperature float64
	Score       float64
	Accepted    bool
	Tasks       []string
	// Pose is the current model after the step. Loggers must not keep it.
	Pose *model.Pose
}

// Logger observes the steps of a protocol run.
type Logger interface {
	Record(step Step)
}

// ProgressLogger reports progress every Every steps.
type ProgressLogger struct {
	logger *slog.Logger
	every  int
}

// NewProgressLogger creates a progress logger. every below 1 logs each step.
func NewProgressLogger(logger *slog.Logger, every int) *ProgressLogger {
	return &ProgressLogger{logger: logger, every: max(every, 1)}
}

func (l *ProgressLogger) Record(step Step) {
	if step.Index%l.every != 0 {
		return
	}
	l.logger.Debug("refine step",
		slog.Int("step", step.Index),
		slog.Int("outer", step.Outer),
		slog.Int("inner", step.Inner),
		slog.Float64("temperature", step.Temperature),
		slog.Float64("score", step.Score),
		slog.Bool("accepted", step.Accepted),
	)
}

// Point is one sample of ScoreVsRMSD.
type Point struct {
	Score float64
	RMSD  float64
}

// ScoreVsRMSD samples the score against the region deviation from a reference model.
type ScoreVsRMSD struct {
	mu        sync.Mutex
	reference *model.Pose
	regions   region.Set
	points    []Point
}

// NewScoreVsRMSD creates the logger. The reference is expected to share the rigid frame of the
// refined model.
func NewScoreVsRMSD(reference *model.Pose, regions region.Set) *ScoreVsRMSD {
	return &ScoreVsRMSD{reference: reference, regions: regions.Clone()}
}

func (l *ScoreVsRMSD) Record(step Step) {
	if l.reference == nil || step.Pose == nil {
		return
	}
	dev, err := rmsd.Loop(l.reference, step.Pose, l.regions, rmsd.CAOnly)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.points = append(l.points, Point{Score: step.Score, RMSD: dev})
}

// Points returns the samples in step order.
func (l *ScoreVsRMSD) Points() []Point {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]Point(nil), l.points...)
}

// AcceptanceRates counts accepted trials per task in a measure.
type AcceptanceRates struct {
	measure measure.Measure
	prefix  string
}

// NewAcceptanceRates records trials under metrics named prefix + task name.
func NewAcceptanceRates(m measure.Measure, prefix string) *AcceptanceRates {
	return &AcceptanceRates{measure: m, prefix: prefix}
}

func (l *AcceptanceRates) Record(step Step) {
	for _, name := range step.Tasks {
		l.measure.AddMetric(l.prefix + name).AddTrial(step.Accepted)
	}
}
