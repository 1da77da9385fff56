package pipeline

import (
	"context"
	"log/slog"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/region"
	"github.com/askiada/go-looprelax/pkg/pipeline/score"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
)

// State is the transient bookkeeping of one run.
type State struct {
	AllRegionsClosed bool
	RetryCount       int
	CoreLength       int
}

// run holds everything one Apply call mutates. The controller itself stays read-only.
type run struct {
	*Controller

	ctx    context.Context //nolint:containedctx // scoped to one Apply call
	tag    string
	logger *slog.Logger
	rng    *rand.Rand

	pose   *model.Pose
	start  *model.Pose
	native *model.Pose
	scores *model.ScoreTable

	centroid *score.Function
	fullatom *score.Function

	regions       region.Set
	remodel       string
	remodelRan    bool
	fullatomInput bool

	state  State
	status Status
	stages []string
	parent *model.StageInfo
}

func (c *Controller) newRun(ctx context.Context, tag string, pose *model.Pose, scores *model.ScoreTable) *run {
	r := &run{
		Controller:    c,
		ctx:           ctx,
		tag:           tag,
		logger:        c.logger.With(slog.String("tag", tag)),
		rng:           runRand(c.seed, tag),
		pose:          pose,
		start:         pose.Clone(),
		scores:        scores,
		centroid:      c.centroid.Clone(),
		fullatom:      c.fullatom.Clone(),
		remodel:       c.cfg.Remodel,
		fullatomInput: pose.IsFullAtom(),
		state:         State{AllRegionsClosed: true},
		status:        StatusCompleted,
		parent:        model.StartStage,
	}
	if c.native != nil {
		r.native = c.native.Clone()
	}

	return r
}

func (r *run) result() Result {
	return Result{
		Status:           r.status,
		AllRegionsClosed: r.state.AllRegionsClosed,
		RemodelAttempts:  r.state.RetryCount,
		RegionCount:      len(r.regions),
		CoreLength:       r.state.CoreLength,
		Stages:           append([]string(nil), r.stages...),
	}
}

type stageStep struct {
	name    string
	enabled func() bool
	fn      func(info *model.StageInfo) error
}

func (r *run) execute() error {
	centroid := []stageStep{
		{"prepare", always, r.prepare},
		{"initial_build", func() bool { return r.cfg.BuildInitial }, r.initialBuild},
		{"grow", func() bool { return r.cfg.GrowBy > 0 }, r.grow},
		{"constraints", always, r.setupConstraints},
		{"remodel", func() bool { return r.remodel != stage.Off }, r.remodelLoop},
	}
	err := r.runStages(centroid)
	if err != nil || r.status == StatusRetryRequested {
		return err
	}

	return r.runStages([]stageStep{
		{"midpoint_stats", func() bool { return r.cfg.ComputeRMSD }, r.midpointStats},
		{"fullatom", r.fullatomEnabled, r.fullatomTransition},
		{"intermediate", func() bool { return r.cfg.Intermediate != stage.Off }, r.intermediate},
		{"refine", func() bool { return r.cfg.Refine != stage.Off }, r.refine},
		{"idealize", func() bool { return r.cfg.IdealizeAfterClosure && r.state.AllRegionsClosed }, r.idealize},
		{"relax", func() bool { return r.cfg.Relax != stage.Off }, r.relax},
		{"final_clean", r.finalCleanEnabled, r.finalClean},
		{"final_stats", always, r.finalStats},
	})
}

func (r *run) runStages(steps []stageStep) error {
	for _, step := range steps {
		if !step.enabled() {
			continue
		}
		err := r.runStage(step.name, step.fn)
		if err != nil {
			return err
		}
		if r.status == StatusRetryRequested {
			return nil
		}
	}

	return nil
}

func always() bool {
	return true
}

// runStage wraps one stage with the hooks, the stage banner and a cancellation check.
func (r *run) runStage(name string, fn func(info *model.StageInfo) error) error {
	err := r.ctx.Err()
	if err != nil {
		return errors.Wrapf(err, "run cancelled before %s", name)
	}

	info := &model.StageInfo{Name: name}
	for _, hook := range r.hooks {
		err := hook.PrepareStage(r.parent, info)
		if err != nil {
			return errors.Wrapf(err, "unable to prepare stage %s", name)
		}
	}

	r.logger.Info("stage started", slog.String("stage", name))
	startTime := r.now()
	err = fn(info)
	if err != nil {
		return errors.Wrapf(err, "stage %s", name)
	}
	elapsed := r.now().Sub(startTime)
	r.logger.Info("stage done",
		slog.String("stage", name),
		slog.String("strategy", info.Strategy),
		slog.Bool("recovered", info.Recovered),
		slog.Duration("elapsed", elapsed))

	for _, hook := range r.hooks {
		err := hook.OnStageOutput(info, elapsed)
		if err != nil {
			return errors.Wrapf(err, "unable to record stage %s", name)
		}
	}
	r.stages = append(r.stages, name)
	r.parent = info

	return nil
}

func (r *run) params(family stage.Family, name string, objective *score.Function) stage.Params {
	return stage.Params{
		Family:    family,
		Name:      name,
		Regions:   r.regions.Clone(),
		Fragments: r.fragments,
		Objective: objective,
		Native:    r.native,
		Tag:       r.tag,
		Rand:      r.rng,
		Logger:    r.logger,
		Measure:   r.measure,
		Refine:    r.cfg.RefineCycles,
	}
}

// apply builds the named strategy and runs it once.
func (r *run) apply(params stage.Params) (stage.Outcome, error) {
	exec, err := r.registry.Build(params)
	if err != nil {
		return stage.Outcome{}, err
	}

	outcome, err := exec.Apply(r.ctx, r.pose)
	if err != nil {
		return outcome, errors.Wrapf(err, "%s strategy %s", params.Family, params.Name)
	}

	return outcome, nil
}

// debug records the score of the model under label, and dumps the model when debugging.
func (r *run) debug(label string, objective *score.Function) {
	r.checkpoints.Debug(r.tag, label, objective.Score(r.pose))
	r.dump(label)
}

func (r *run) dump(name string) {
	if !r.cfg.Debug || r.dumper == nil {
		return
	}
	err := r.dumper.Dump(r.tag, name, r.pose)
	if err != nil {
		r.logger.Warn("unable to dump model", slog.String("name", name), slog.String("error", err.Error()))
	}
}
