package cli

import (
	"fmt"

	"github.com/pkg/errors"
)

// Exit codes returned to the shell.
const (
	ExitFatal = 1
	// ExitRetry tells a scheduler that at least one model asked to be refined again from
	// scratch.
	ExitRetry = 3
)

var (
	ErrNoCheckpointStore = errors.New("a checkpoint directory or database is required")
	ErrUnknownAction     = errors.New("unknown action")
)

// ExitError carries the exit code of a failed command so that RunE functions never call
// os.Exit themselves.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}

	return fmt.Sprintf("exit status %d: %v", e.Code, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError wraps err with an exit code.
func NewExitError(code int, err error) *ExitError {
	return &ExitError{Code: code, Err: err}
}

// IsExitError extracts the exit code of err, when it carries one.
func IsExitError(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}

	return 0, false
}
