// Package protocol runs Monte Carlo refinement over a structural model: a sequence of tasks is
// applied to a trial copy, the trial is accepted with the Metropolis criterion under a
// decreasing temperature, and the lowest scoring model seen is restored at the end.
package protocol

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/score"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
)

var ErrNoTasks = errors.New("protocol has no task")

const (
	defaultOuterCycles  = 3
	innerCyclesPerUnit  = 10
	fastOuterCycles     = 3
	fastInnerCycles     = 12
	DefaultMoverCycles  = 2
	DefaultRepackPeriod = 20
	defaultStartTemp    = 1.5
	defaultEndTemp      = 0.5
)

// Iterations returns the outer and inner cycle counts for a region of regionLen units.
func Iterations(regionLen int, cycles stage.RefineCycles) (int, int) {
	outer := defaultOuterCycles
	if cycles.OuterCycles > 0 {
		outer = cycles.OuterCycles
	}
	inner := innerCyclesPerUnit * regionLen
	if cycles.MaxInnerCycles > 0 {
		inner = max(inner, cycles.MaxInnerCycles)
	}
	if cycles.Fast {
		outer, inner = fastOuterCycles, fastInnerCycles
	}

	return outer, inner
}

// Config sets the shape of a run.
type Config struct {
	OuterCycles      int
	InnerCycles      int
	MoverCycles      int
	StartTemperature float64
	EndTemperature   float64
}

// DefaultConfig returns the cycle counts of a region of regionLen units.
func DefaultConfig(regionLen int, cycles stage.RefineCycles) Config {
	outer, inner := Iterations(regionLen, cycles)

	return Config{
		OuterCycles:      outer,
		InnerCycles:      inner,
		MoverCycles:      DefaultMoverCycles,
		StartTemperature: defaultStartTemp,
		EndTemperature:   defaultEndTemp,
	}
}

// Steps returns the number of Metropolis steps of a run.
func (c Config) Steps() int {
	return c.OuterCycles * c.InnerCycles * c.MoverCycles
}

// Option configures a Protocol.
type Option func(p *Protocol)

// WithTasks appends tasks run in order at each step.
func WithTasks(tasks ...Task) Option {
	return func(p *Protocol) {
		p.tasks = append(p.tasks, tasks...)
	}
}

// WithLoggers appends step loggers.
func WithLoggers(loggers ...Logger) Option {
	return func(p *Protocol) {
		p.loggers = append(p.loggers, loggers...)
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Protocol) {
		p.logger = logger
	}
}

// Protocol is a Monte Carlo refinement run.
type Protocol struct {
	objective *score.Function
	cfg       Config
	tasks     []Task
	loggers   []Logger
	logger    *slog.Logger
}

// New creates a protocol scoring trials with objective.
func New(objective *score.Function, cfg Config, opts ...Option) *Protocol {
	p := &Protocol{objective: objective, cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p.logger = p.logger.With(slog.String("component", "protocol"))

	return p
}

// Summary reports how a run went.
type Summary struct {
	Steps       int
	Accepted    int
	LowestScore float64
}

// AcceptanceRate returns the accepted fraction of the steps.
func (s Summary) AcceptanceRate() float64 {
	if s.Steps == 0 {
		return 0
	}

	return float64(s.Accepted) / float64(s.Steps)
}

// Apply refines pose in place. Cancellation is checked between inner cycles.
func (p *Protocol) Apply(ctx context.Context, pose *model.Pose, rng *rand.Rand) (Summary, error) {
	if len(p.tasks) == 0 {
		return Summary{}, ErrNoTasks
	}

	current := p.objective.Score(pose)
	lowest := pose.Clone()
	summary := Summary{LowestScore: current}
	total := p.cfg.Steps()

	p.logger.Debug("refine protocol started",
		slog.Int("outer", p.cfg.OuterCycles),
		slog.Int("inner", p.cfg.InnerCycles),
		slog.Int("steps", total),
		slog.Float64("score", current),
	)

	for outer := 1; outer <= p.cfg.OuterCycles; outer++ {
		for inner := 1; inner <= p.cfg.InnerCycles; inner++ {
			if err := ctx.Err(); err != nil {
				return summary, errors.Wrap(err, "refine protocol interrupted")
			}
			for range p.cfg.MoverCycles {
				summary.Steps++
				temperature := p.temperature(summary.Steps, total)

				trial := pose.Clone()
				fired, err := p.runTasks(ctx, trial, rng, summary.Steps)
				if err != nil {
					return summary, err
				}
				trialScore := p.objective.Score(trial)

				accepted := metropolis(current, trialScore, temperature, rng)
				if accepted {
					pose.CopyFrom(trial)
					current = trialScore
					summary.Accepted++
					if current < summary.LowestScore {
						summary.LowestScore = current
						lowest = pose.Clone()
					}
				}

				step := Step{
					Index:       summary.Steps,
					Outer:       outer,
					Inner:       inner,
					Temperature: temperature,
					Score:       current,
					Accepted:    accepted,
					Tasks:       fired,
					Pose:        pose,
				}
				for _, l := range p.loggers {
					l.Record(step)
				}
			}
		}
	}

	pose.CopyFrom(lowest)
	p.objective.Score(pose)

	p.logger.Debug("refine protocol finished",
		slog.Int("steps", summary.Steps),
		slog.Float64("acceptance", summary.AcceptanceRate()),
		slog.Float64("lowest", summary.LowestScore),
	)

	return summary, nil
}

func (p *Protocol) runTasks(ctx context.Context, trial *model.Pose, rng *rand.Rand, step int) ([]string, error) {
	fired := make([]string, 0, len(p.tasks))
	for _, task := range p.tasks {
		if !task.Due(step) {
			continue
		}
		err := task.Apply(ctx, trial, rng)
		if err != nil {
			return nil, errors.Wrapf(err, "task %s failed at step %d", task.Name(), step)
		}
		fired = append(fired, task.Name())
	}

	return fired, nil
}

// temperature ramps geometrically from the start to the end temperature.
func (p *Protocol) temperature(step, total int) float64 {
	if total <= 1 || p.cfg.StartTemperature <= 0 || p.cfg.EndTemperature <= 0 {
		return p.cfg.StartTemperature
	}
	ratio := p.cfg.EndTemperature / p.cfg.StartTemperature

	return p.cfg.StartTemperature * math.Pow(ratio, float64(step-1)/float64(total-1))
}

func metropolis(current, trial, temperature float64, rng *rand.Rand) bool {
	if trial <= current {
		return true
	}
	if temperature <= 0 {
		return false
	}

	return rng.Float64() < math.Exp(-(trial-current)/temperature)
}
