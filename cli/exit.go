package cli

import "fmt"

const (
	exitFailure = 1
	exitUsage   = 2
)

// ExitError carries the process exit code for main.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}
