package drawer

import (
	"time"

	"github.com/askiada/go-looprelax/pkg/pipeline/measure"
)

// Drawer is an interface that defines the methods for drawing the stage flow of a run.
type Drawer interface {
	// AddStage adds a stage to the drawer. Adding a stage twice is not an error.
	AddStage(stageName string) error
	// AddLink adds a link between parent and child stages.
	AddLink(parentStageName, childStageName string) error
	// Draw creates a file with the stage graph.
	Draw() error
	// SetTotalTime sets the total time for the stage.
	SetTotalTime(stageName string, startTime time.Time) error
	// AddMeasure adds a measure to the drawer.
	AddMeasure(measure measure.Measure) error
}
