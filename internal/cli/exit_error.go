package cli

import "fmt"

// Exit codes.
const (
	ExitFailure = 1
	// ExitInvalid is returned by verify when the archive is not validly signed.
	ExitInvalid = 2
)

// ExitError signals a non-zero exit code without calling os.Exit in RunE.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}
