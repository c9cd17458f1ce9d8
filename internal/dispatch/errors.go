package dispatch

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration = errors.New("remote training is not configured")
	ErrTransport     = errors.New("remote transport failed")
	ErrCommand       = errors.New("remote training command failed")
	ErrEmptyPayload  = errors.New("no dataset content to stage")
)

// CommandError reports a remote training process that exited with a non-zero code.
type CommandError struct {
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("training failed: exit code %d", e.ExitCode)
}

func (e *CommandError) Unwrap() error {
	return ErrCommand
}

func configurationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

func transportError(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, step, err)
}
