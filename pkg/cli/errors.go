package cli

import "fmt"

// Process exit codes.
const (
	ExitOK      = 0
	ExitError   = 1
	ExitBlocked = 2
)

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// ExitCodeError asks the caller to exit with Code without printing an error.
// "grokflow check" returns it when a block constraint fires.
type ExitCodeError struct {
	Code   int
	Reason string
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("exit status %d: %s", e.Code, e.Reason)
}
