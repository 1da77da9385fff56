package measure

import (
	"time"

	"github.com/askiada/go-looprelax/pkg/pipeline/model"
)

type pipelineMeasure struct {
	Measure
	now   func() time.Time
	start time.Time
}

func (pm *pipelineMeasure) New() error {
	pm.start = pm.now()
	pm.AddMetric(model.StartStage.Name)
	pm.AddMetric(model.EndStage.Name)

	return nil
}

func (pm *pipelineMeasure) PrepareStage(_, stage *model.StageInfo) error {
	pm.AddMetric(stage.Name)

	return nil
}

func (pm *pipelineMeasure) OnStageOutput(stage *model.StageInfo, elapsed time.Duration) error {
	pm.AddMetric(stage.Name).AddDuration(elapsed)

	return nil
}

func (pm *pipelineMeasure) Finish() error {
	pm.AddMetric(model.EndStage.Name).SetTotalDuration(pm.now().Sub(pm.start))

	return nil
}

// PipelineMeasure records the duration of every stage of a run into measure.
func PipelineMeasure(measure Measure) model.PipelineOption {
	return &pipelineMeasure{Measure: measure, now: time.Now}
}
