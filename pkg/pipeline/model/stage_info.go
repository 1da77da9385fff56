package model

// StageInfo describes one executed stage.
type StageInfo struct {
	Name      string
	Strategy  string
	Recovered bool
}

var (
	StartStage = &StageInfo{Name: "start"}
	EndStage   = &StageInfo{Name: "end"}
)
