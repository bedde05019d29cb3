package common

import (
	"errors"
	"fmt"
)

// Process exit codes. Each fatal condition has its own code so the fabric
// can tell them apart.
const (
	ExitOK                    = 0
	ExitSignaledAfterFinish   = 1
	ExitUsage                 = 2
	ExitConnectRetries        = 8
	ExitRemoteFileNotFound    = 40
	ExitLocalFileNotFound     = 41
	ExitSignaled              = 50
	ExitDependencyFailed      = 51
	ExitDependencyFinished    = 52
	ExitNotifyFailed          = 100
	ExitJobDescriptionMissing = 102
	ExitDependencyTimeout     = 200
)

var (
	ErrConnectRetriesExhausted  = fmt.Errorf("connection retries exhausted")
	ErrRemoteFileNotFound       = fmt.Errorf("remote file not found")
	ErrLocalFileNotFound        = fmt.Errorf("local file not found")
	ErrConnectionLost           = fmt.Errorf("connection lost")
	ErrSignaled                 = fmt.Errorf("interrupted by signal")
	ErrDependencyFailed         = fmt.Errorf("dependency reported failure")
	ErrDependencyFinishedEarly  = fmt.Errorf("dependency finished without required files")
	ErrDependencyTimeout        = fmt.Errorf("dependency wait timed out")
	ErrNotifyFailed             = fmt.Errorf("cannot notify completion")
	ErrJobDescriptionMissing    = fmt.Errorf("job description not found")
	ErrInvalidJobDescription    = fmt.Errorf("invalid job description")
	ErrSyncLogClosed            = fmt.Errorf("sync log is closed")
	ErrSyncLogAlreadyFinalized  = fmt.Errorf("sync log is already finalized")
	ErrResolverBadResponse      = fmt.Errorf("resolver returned bad response")
	ErrUnknownLogLevel          = fmt.Errorf("unknown log level")
	ErrSymlinksNotSupportedByFS = fmt.Errorf("filesystem does not support symlinks")
)

// ExitError binds an error to the process exit code it must produce.
type ExitError struct {
	Code int
	Err  error
}

func NewExitError(code int, err error) *ExitError {
	return &ExitError{Code: code, Err: err}
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%v (exit code %d)", e.Err, e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode returns the exit code carried by err. Nil is ExitOK, errors without
// a code map to ExitUsage.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	return ExitUsage
}
