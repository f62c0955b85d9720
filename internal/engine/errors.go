package engine

import (
	"errors"
	"fmt"
)

// Error kinds. A workflow error wraps exactly one of these, or
// completion.ErrNotCompleted when the guest did not finish in time.
var (
	ErrStaging   = errors.New("staging failed")
	ErrNormalize = errors.New("normalization failed")
	ErrSession   = errors.New("session failed")
	ErrInjection = errors.New("injection failed")
)

// StepError reports the workflow state that was being entered when a run
// failed.
type StepError struct {
	Task  string
	State string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: entering %s: %v", e.Task, e.State, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// kind wraps cause with an error kind.
func kind(k, cause error) error {
	return fmt.Errorf("%w: %w", k, cause)
}
