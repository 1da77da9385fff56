package pipeline

import (
	"context"

	"github.com/askiada/go-looprelax/pkg/pipeline/model"
	"github.com/askiada/go-looprelax/pkg/pipeline/region"
	"github.com/askiada/go-looprelax/pkg/pipeline/score"
)

// Packer rebuilds the side chains of the units flagged in repack, 0-based, then minimises
// them under objective.
type Packer interface {
	Pack(ctx context.Context, pose *model.Pose, repack []bool, objective *score.Function) error
}

// Idealizer restores ideal geometry after the regions are closed.
type Idealizer interface {
	Idealize(ctx context.Context, pose *model.Pose, regions region.Set) error
}

// Dumper receives snapshots of the model around stages when debugging is on.
type Dumper interface {
	Dump(tag, name string, pose *model.Pose) error
}
