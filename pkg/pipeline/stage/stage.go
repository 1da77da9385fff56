// Package stage defines the pluggable strategies run by each stage of the pipeline and the
// registry that resolves them by name.
package stage

import (
	"context"
	"log/slog"
	"math/rand"

	"github.com/askiada/go-looprelax/pkg/pipeline/measure"
	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/region"
	"github.com/askiada/go-looprelax/pkg/pipeline/score"
)

// Family groups the strategies that can be selected for one stage.
type Family string

const (
	Remodel      Family = "remodel"
	Intermediate Family = "intermediate"
	Refine       Family = "refine"
	Relax        Family = "relax"
)

// Families lists every family in pipeline order.
var Families = []Family{Remodel, Intermediate, Refine, Relax}

// Off disables a stage.
const Off = "no"

// Strategy names.
const (
	QuickCCD          = "quick_ccd"
	QuickCCDMoves     = "quick_ccd_moves"
	PerturbCCD        = "perturb_ccd"
	PerturbKIC        = "perturb_kic"
	SDKIC             = "sdkic"
	OldLoopRelax      = "old_loop_relax"
	ClassicRelax      = "relax"
	FastRelax         = "fastrelax"
	SeqRelax          = "seqrelax"
	MiniRelax         = "minirelax"
	RefineCCD         = "refine_ccd"
	RefineKIC         = "refine_kic"
	RefineKICRefactor = "refine_kic_refactor"
)

var known = map[Family][]string{
	Remodel:      {QuickCCD, QuickCCDMoves, PerturbCCD, PerturbKIC, SDKIC, OldLoopRelax},
	Intermediate: {ClassicRelax, FastRelax, SeqRelax},
	Refine:       {RefineCCD, RefineKIC, RefineKICRefactor},
	Relax:        {ClassicRelax, FastRelax, SeqRelax, MiniRelax},
}

// Status reports how a strategy run ended.
type Status int

const (
	Success Status = iota
	Failure
)

func (s Status) String() string {
	if s == Success {
		return "success"
	}

	return "failure"
}

// Outcome is what a strategy reports back to the controller.
type Outcome struct {
	Status Status
	// Closed reports whether every region was closed after the run.
	Closed bool
}

// Executor mutates a model in place.
type Executor interface {
	Apply(ctx context.Context, pose *model.Pose) (Outcome, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, pose *model.Pose) (Outcome, error)

func (f ExecutorFunc) Apply(ctx context.Context, pose *model.Pose) (Outcome, error) {
	return f(ctx, pose)
}

// RefineCycles tunes the cycle counts of the refine sub-protocol.
type RefineCycles struct {
	OuterCycles    int
	MaxInnerCycles int
	Fast           bool
	RepackPeriod   int
}

// Params carries everything a factory may need to build an executor.
type Params struct {
	Family     Family
	Name       string
	Regions    region.Set
	Fragments  []model.FragmentLibrary
	Objective  *score.Function
	Native     *model.Pose
	Tag        string
	Rand       *rand.Rand
	Logger     *slog.Logger
	Measure    measure.Measure
	Aggressive bool
	Refine     RefineCycles
}

// Factory builds an executor for one run.
type Factory func(params Params) (Executor, error)

// Requirements describes what a strategy expects from the controller.
type Requirements struct {
	NeedsFragments bool
	// TerminalCuts asks for a topology that also breaks regions touching the chain ends.
	TerminalCuts bool
	// Legacy strategies always exit the remodel loop on the score filter.
	Legacy bool
	// AbortOnFirstFailure turns a failed first attempt into a retry request for the whole run.
	AbortOnFirstFailure bool
}

// RequirementsOf returns the requirements of a named strategy.
func RequirementsOf(family Family, name string) Requirements {
	var req Requirements
	switch family {
	case Remodel:
		req.NeedsFragments = name != PerturbKIC && name != OldLoopRelax && name != Off
		req.TerminalCuts = name == PerturbKIC
		req.Legacy = name == OldLoopRelax
		req.AbortOnFirstFailure = name == PerturbKIC
	case Refine:
		req.TerminalCuts = name == RefineKIC
	case Intermediate, Relax:
	}

	return req
}

// Known reports whether name is a strategy of the family.
func Known(family Family, name string) bool {
	for _, n := range known[family] {
		if n == name {
			return true
		}
	}

	return false
}

// Names returns the strategy names of the family.
func Names(family Family) []string {
	return append([]string(nil), known[family]...)
}
