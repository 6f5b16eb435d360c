package process

import (
	"errors"
	"fmt"
	"os/exec"
	"slices"
)

// Sentinel errors for supervised processes.
var (
	// ErrAlreadyRunning is returned by Start when the process is live.
	ErrAlreadyRunning = errors.New("process: already running")

	// ErrRestartsExhausted is recorded when MaxRestartAttempts is exceeded.
	ErrRestartsExhausted = errors.New("process: restart attempts exhausted")

	// ErrHealthCheck is recorded when the process is killed for failing
	// its health check.
	ErrHealthCheck = errors.New("process: health check failed")
)

// RecoverableError is implemented by errors that know whether a restart
// can help.
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// IsRecoverable reports whether a restart may clear err. Errors that do
// not implement RecoverableError are assumed recoverable.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	var re RecoverableError
	if errors.As(err, &re) {
		return re.IsRecoverable()
	}
	return true
}

// ExitError describes an unexpected process exit.
type ExitError struct {
	Name string
	Code int

	// Permanent is set when Code is listed in Config.PermanentExitCodes.
	Permanent bool
	Err       error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("process %s exited with code %d: %v", e.Name, e.Code, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// IsRecoverable implements RecoverableError.
func (e *ExitError) IsRecoverable() bool { return !e.Permanent }

// classifyExit wraps a Wait error with the exit code, when there is one.
func classifyExit(name string, err error, permanent []int) error {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return err
	}
	code := exitErr.ExitCode()
	return &ExitError{
		Name:      name,
		Code:      code,
		Permanent: slices.Contains(permanent, code),
		Err:       err,
	}
}
