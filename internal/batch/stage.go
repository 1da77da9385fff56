package batch

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// flow is one stage of the job flow and the channel it writes to.
type flow[O any] struct {
	name       string
	output     chan O
	concurrent int
}

// source starts a goroutine feeding the output of a new stage with fn.
func source[O any](ctx context.Context, name string, fn func(ctx context.Context, out chan<- O) error) (*flow[O], *errorChan) {
	step := &flow[O]{name: name, output: make(chan O), concurrent: 1}
	errC := make(chan error, 1)

	go func() {
		defer func() {
			close(step.output)
			close(errC)
		}()
		err := fn(ctx, step.output)
		if err != nil {
			errC <- err
		}
	}()

	return step, newErrorChan(name, errC)
}

// oneToOne starts concurrent workers mapping every input of the previous stage with fn.
func oneToOne[I, O any](ctx context.Context, name string, concurrent int, input *flow[I], fn func(context.Context, I) (O, error)) (*flow[O], *errorChan) {
	step := &flow[O]{name: name, output: make(chan O), concurrent: max(concurrent, 1)}
	errC := make(chan error, 1)

	go func() {
		defer func() {
			close(step.output)
			close(errC)
		}()
		errGrp, dCtx := errgroup.WithContext(ctx)
		errGrp.SetLimit(step.concurrent)
		for goIdx := range step.concurrent {
			errGrp.Go(func() error {
				return worker(dCtx, goIdx, input, step, fn)
			})
		}
		err := errGrp.Wait()
		if err != nil {
			errC <- err
		}
	}()

	return step, newErrorChan(name, errC)
}

func worker[I, O any](ctx context.Context, goIdx int, input *flow[I], output *flow[O], fn func(context.Context, I) (O, error)) error {
	for {
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "worker %d", goIdx)
		case in, ok := <-input.output:
			if !ok {
				return nil
			}
			out, err := fn(ctx, in)
			if err != nil {
				return errors.Wrapf(err, "worker %d", goIdx)
			}
			// the context is checked again so that no worker keeps feeding a cancelled flow
			select {
			case <-ctx.Done():
				return errors.Wrapf(ctx.Err(), "worker %d", goIdx)
			case output.output <- out:
			}
		}
	}
}

// sinkStage drains the previous stage into fn, one item at a time.
func sinkStage[I any](ctx context.Context, name string, input *flow[I], fn func(context.Context, I) error) *errorChan {
	errC := make(chan error, 1)

	go func() {
		defer close(errC)
		for {
			select {
			case <-ctx.Done():
				errC <- ctx.Err()
				return
			case in, ok := <-input.output:
				if !ok {
					return
				}
				err := fn(ctx, in)
				if err != nil {
					errC <- err
					return
				}
			}
		}
	}()

	return newErrorChan(name, errC)
}
