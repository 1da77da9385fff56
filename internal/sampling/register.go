package sampling

import (
	"github.com/pkg/errors"

	"github.com/askiada/go-looprelax/pkg/pipeline"
	"github.com/askiada/go-looprelax/pkg/pipeline/stage"
)

// RegisterDefaults binds every known strategy name to its reference implementation.
func RegisterDefaults(reg *stage.Registry) error {
	bindings := []struct {
		family  stage.Family
		names   []string
		factory stage.Factory
	}{
		{stage.Remodel, []string{stage.QuickCCD, stage.QuickCCDMoves, stage.PerturbCCD, stage.PerturbKIC, stage.SDKIC}, NewClosure},
		{stage.Remodel, []string{stage.OldLoopRelax}, NewLegacy},
		{stage.Intermediate, stage.Names(stage.Intermediate), NewRelaxer},
		{stage.Relax, stage.Names(stage.Relax), NewRelaxer},
		{stage.Refine, []string{stage.RefineCCD, stage.RefineKIC}, NewRefiner},
		{stage.Refine, []string{stage.RefineKICRefactor}, NewProtocolRefiner},
	}
	for _, b := range bindings {
		for _, name := range b.names {
			err := reg.Register(b.family, name, b.factory)
			if err != nil {
				return errors.Wrap(err, "unable to register reference strategies")
			}
		}
	}

	return nil
}

// NewRegistry returns a registry holding every reference strategy.
func NewRegistry() *stage.Registry {
	reg := stage.NewRegistry()
	err := RegisterDefaults(reg)
	if err != nil {
		panic(err)
	}

	return reg
}

var (
	_ pipeline.Packer    = Packer{}
	_ pipeline.Idealizer = Idealizer{}
)
