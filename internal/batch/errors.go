package batch

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrFactoryMustBeSet = errors.New("controller factory must be set")
	ErrSinkMustBeSet    = errors.New("sink must be set")
	ErrNoJobs           = errors.New("no job to run")
)

type errorChan struct {
	c    <-chan error
	name string
}

func newErrorChan(name string, c <-chan error) *errorChan {
	return &errorChan{c: c, name: name}
}

// mergeErrors fans every error channel into one, named after the stage that failed.
// The output is buffered so that it never blocks once the reader gives up.
func mergeErrors(cs ...*errorChan) <-chan error {
	var wg sync.WaitGroup
	out := make(chan error, len(cs))

	output := func(c *errorChan) {
		defer wg.Done()
		for err := range c.c {
			out <- errors.Wrap(err, c.name)
		}
	}
	wg.Add(len(cs))
	for _, c := range cs {
		go output(c)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

// waitFor returns the first error of any channel, or nil once they are all closed.
func waitFor(errs ...*errorChan) error {
	for err := range mergeErrors(errs...) {
		if err != nil {
			return err
		}
	}

	return nil
}
