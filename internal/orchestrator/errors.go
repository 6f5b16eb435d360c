package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrLinkTimeout is returned when the link does not associate within
	// wifi.associate_timeout.
	ErrLinkTimeout = errors.New("orchestrator: timed out waiting for link")

	// ErrRuntime is returned when the Runtime is missing a collaborator.
	ErrRuntime = errors.New("orchestrator: incomplete runtime")
)

// StageError reports the startup stage a fatal error occurred in.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("orchestrator: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
