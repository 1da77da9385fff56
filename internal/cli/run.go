package cli

import (
	"context"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/askiada/go-looprelax/internal/batch"
	"github.com/askiada/go-looprelax/internal/modelio"
	"github.com/askiada/go-looprelax/internal/sampling"
	"github.com/askiada/go-looprelax/pkg/pipeline"
	"github.com/askiada/go-looprelax/pkg/pipeline/checkpoint"
	"github.com/askiada/go-looprelax/pkg/pipeline/drawer"
	"github.com/askiada/go-looprelax/pkg/pipeline/measure"
	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/region"
)

const poseExt = ".yaml"

type runFlags struct {
	regions    string
	native     string
	fragments  string
	restraints string
	tag        string
	out        string
	draw       string
}

// inputs are the files shared by every job of a run.
type inputs struct {
	regions    region.Set
	native     *model.Pose
	fragments  []model.FragmentLibrary
	restraints model.Constraints
}

func (a *App) newRunCommand() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run MODEL...",
		Short: "Remodel, refine and relax one or more models",
		Long: `Run every enabled stage on each model. Models run concurrently up to --jobs.

Runs sharing a tag resume from their last checkpoint when --checkpoint-dir or
--checkpoint-db is set. Without --tag every model gets a random tag.

The command exits with status 3 when a model asked to be refined again from scratch.`,
		Example: `  looprelax run model.yaml --regions loops.yaml --fragments frags.yaml --remodel quick_ccd
  looprelax run a.yaml b.yaml --jobs 2 --checkpoint-db runs.db --tag batch1 --out refined/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), args, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.regions, "regions", "", "region file, regions are detected from chain breaks when unset and detection is on")
	flags.StringVar(&f.native, "native", "", "reference model for the comparison metrics")
	flags.StringVar(&f.fragments, "fragments", "", "fragment library file")
	flags.StringVar(&f.restraints, "restraints", "", "restraint file")
	flags.StringVar(&f.tag, "tag", "", "checkpoint tag, suffixed with the model name when several models are given")
	flags.StringVar(&f.out, "out", "", "directory receiving the refined models and debug dumps")
	flags.StringVar(&f.draw, "draw", "", "DOT file receiving the stage flow of each run")
	flags.Int("jobs", 1, "models refined at the same time")
	flags.Int64("seed", 0, "random seed")
	flags.Bool("debug", false, "record debug scores and dump the model around stages")
	flags.Bool("detect", false, "detect regions around chain breaks when no region file is given")
	flags.String("remodel", pipeline.DefaultConfig().Remodel, "remodel strategy")
	flags.String("intermediate", pipeline.DefaultConfig().Intermediate, "intermediate relax strategy")
	flags.String("refine", pipeline.DefaultConfig().Refine, "refine strategy")
	flags.String("relax", pipeline.DefaultConfig().Relax, "relax strategy")
	a.bind(cmd, map[string]string{
		"run.jobs":            "jobs",
		"run.seed":            "seed",
		"run.debug":           "debug",
		"remodel.detect":      "detect",
		"stages.remodel":      "remodel",
		"stages.intermediate": "intermediate",
		"stages.refine":       "refine",
		"stages.relax":        "relax",
	})

	return cmd
}

func (a *App) run(ctx context.Context, paths []string, f runFlags) error {
	in, err := readInputs(f)
	if err != nil {
		return NewExitError(ExitFatal, err)
	}
	jobs, err := readJobs(paths, f.tag)
	if err != nil {
		return NewExitError(ExitFatal, err)
	}

	backend, closeBackend, err := a.openCheckpoints()
	if err != nil {
		return fatal(err, "unable to open checkpoints")
	}
	defer closeBackend()
	checkpoints := checkpoint.New(backend, checkpoint.WithLogger(a.logger))

	factory := a.controllerFactory(in, checkpoints, f, len(jobs) > 1)
	runner, err := batch.NewRunner(factory,
		batch.WithJobs(a.cfg.Run.Jobs),
		batch.WithLogger(a.logger))
	if err != nil {
		return fatal(err, "unable to create job runner")
	}

	var (
		mu      sync.Mutex
		reports []batch.Report
	)
	err = runner.Run(ctx, jobs, func(_ context.Context, report batch.Report) error {
		if f.out != "" {
			path := filepath.Join(f.out, report.Job.Name+poseExt)
			err := modelio.WritePose(path, report.Job.Pose, report.Scores)
			if err != nil {
				return err
			}
		}
		mu.Lock()
		reports = append(reports, report)
		mu.Unlock()

		return nil
	})
	if len(reports) > 0 {
		renderErr := renderReports(a.Out, reports)
		if renderErr != nil {
			a.logger.Warn("unable to render reports", slog.String("error", renderErr.Error()))
		}
	}
	if err != nil {
		return NewExitError(ExitFatal, err)
	}

	retries := 0
	for _, report := range reports {
		if report.Retry() {
			retries++
		}
	}
	if retries > 0 {
		return NewExitError(ExitRetry, errors.Errorf("%d model(s) asked to be refined again", retries))
	}

	return nil
}

func (a *App) controllerFactory(in inputs, checkpoints *checkpoint.Checkpointer, f runFlags, many bool) batch.ControllerFactory {
	registry := sampling.NewRegistry()
	msr := measure.NewDefaultMeasure()
	cfg := a.cfg.Pipeline()

	return func(job batch.Job) (*pipeline.Controller, error) {
		hooks := []model.PipelineOption{measure.PipelineMeasure(msr)}
		if f.draw != "" {
			hooks = append(hooks, drawer.PipelineDrawer(drawer.NewDOTDrawer(drawPath(f.draw, job.Name, many)), msr))
		}

		opts := []pipeline.Option{
			pipeline.WithConfig(cfg),
			pipeline.WithRegistry(registry),
			pipeline.WithCheckpointer(checkpoints),
			pipeline.WithLogger(a.logger.With(slog.String("model", job.Name))),
			pipeline.WithMeasure(msr),
			pipeline.WithHooks(hooks...),
			pipeline.WithSeed(a.cfg.Run.Seed),
			pipeline.WithPacker(sampling.Packer{}),
			pipeline.WithIdealizer(sampling.Idealizer{}),
			pipeline.WithFragments(in.fragments...),
			pipeline.WithRestraints(in.restraints),
		}
		if in.native != nil {
			opts = append(opts, pipeline.WithNative(in.native))
		}
		switch {
		case in.regions != nil:
			opts = append(opts, pipeline.WithRegions(in.regions))
		case a.cfg.Remodel.Detect:
			opts = append(opts, pipeline.WithDetector(sampling.ChainbreakPicker{}))
		}
		if f.out != "" {
			opts = append(opts, pipeline.WithDumper(poseDumper{dir: filepath.Join(f.out, "debug")}))
		}

		return pipeline.New(opts...)
	}
}

func readInputs(f runFlags) (inputs, error) {
	var (
		in  inputs
		err error
	)
	if f.regions != "" {
		in.regions, err = modelio.ReadRegions(f.regions)
		if err != nil {
			return in, err
		}
	}
	if f.native != "" {
		in.native, err = modelio.ReadPose(f.native)
		if err != nil {
			return in, errors.Wrap(err, "reference model")
		}
	}
	if f.fragments != "" {
		in.fragments, err = modelio.ReadFragments(f.fragments)
		if err != nil {
			return in, err
		}
	}
	if f.restraints != "" {
		in.restraints, err = modelio.ReadRestraints(f.restraints)
		if err != nil {
			return in, err
		}
	}

	return in, nil
}

// readJobs loads every model. Job names come from the file names and are made unique.
func readJobs(paths []string, tag string) ([]batch.Job, error) {
	jobs := make([]batch.Job, 0, len(paths))
	seen := map[string]int{}
	for _, path := range paths {
		pose, err := modelio.ReadPose(path)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		seen[name]++
		if n := seen[name]; n > 1 {
			name += "_" + strconv.Itoa(n)
		}

		job := batch.Job{Name: name, Pose: pose}
		switch {
		case tag == "":
		case len(paths) == 1:
			job.Tag = tag
		default:
			job.Tag = tag + "_" + name
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

func drawPath(path, name string, many bool) string {
	if !many {
		return path
	}
	ext := filepath.Ext(path)

	return strings.TrimSuffix(path, ext) + "_" + name + ext
}

// poseDumper writes debug snapshots under dir/<tag>/<name>.yaml.
type poseDumper struct {
	dir string
}

func (d poseDumper) Dump(tag, name string, pose *model.Pose) error {
	return modelio.WritePose(filepath.Join(d.dir, tag, name+poseExt), pose, nil)
}

var _ pipeline.Dumper = poseDumper{}
