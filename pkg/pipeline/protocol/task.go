package protocol

import (
	"context"
	"math/rand"

	"github.com/askiada/go-looprelax/pkg/pipeline/model"
)

// Task is one move applied to a trial model.
type Task interface {
	Name() string
	// Due reports whether the task runs at the given 1-based step.
	Due(step int) bool
	Apply(ctx context.Context, pose *model.Pose, rng *rand.Rand) error
}

type funcTask struct {
	name string
	fn   func(ctx context.Context, pose *model.Pose, rng *rand.Rand) error
}

// NewTask wraps fn as a task that runs at every step.
func NewTask(name string, fn func(ctx context.Context, pose *model.Pose, rng *rand.Rand) error) Task {
	return &funcTask{name: name, fn: fn}
}

func (t *funcTask) Name() string {
	return t.name
}

func (t *funcTask) Due(int) bool {
	return true
}

func (t *funcTask) Apply(ctx context.Context, pose *model.Pose, rng *rand.Rand) error {
	return t.fn(ctx, pose, rng)
}

type periodicTask struct {
	Task
	period int
}

// Periodic runs task only every period steps. A period below 2 runs it every step.
func Periodic(task Task, period int) Task {
	if period < 2 {
		return task
	}

	return &periodicTask{Task: task, period: period}
}

func (t *periodicTask) Due(step int) bool {
	return step%t.period == 0
}
