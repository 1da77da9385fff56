package model

import "time"

// PipelineOption defines the interface for hooks observing a pipeline run.
type PipelineOption interface {
	// New initialises the pipeline option.
	New() error
	// PrepareStage runs before the stage is executed.
	PrepareStage(parentStage, stage *StageInfo) error
	// OnStageOutput runs every time a stage completes.
	OnStageOutput(stage *StageInfo, elapsed time.Duration) error
	// Finish runs after the pipeline is finished.
	Finish() error
}
