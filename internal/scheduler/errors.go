package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrWriteInFlight is returned when a completion is requested while the
	// previous write has not finished.
	ErrWriteInFlight = errors.New("completion already in flight")
	// ErrNoCurrentTask is returned by Complete and Skip in the idle state.
	ErrNoCurrentTask = errors.New("no current task")
)

// NetworkError reports a failed fetch. Prior state is retained and the
// caller may retry.
type NetworkError struct {
	Op           string
	DefinitionID int64
	Err          error
}

func (e NetworkError) Error() string {
	if e.DefinitionID != 0 {
		return fmt.Sprintf("%s (definition %d): %v", e.Op, e.DefinitionID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e NetworkError) Unwrap() error { return e.Err }

func (e NetworkError) Retryable() bool { return true }

// WriteError reports a failed log-entry create. No local state was changed.
type WriteError struct {
	DefinitionID int64
	Err          error
}

func (e WriteError) Error() string {
	return fmt.Sprintf("log completion for definition %d: %v", e.DefinitionID, e.Err)
}

func (e WriteError) Unwrap() error { return e.Err }

func asNetworkError(op string, definitionID int64, err error) error {
	var ne NetworkError
	if errors.As(err, &ne) {
		return err
	}
	return NetworkError{Op: op, DefinitionID: definitionID, Err: err}
}
