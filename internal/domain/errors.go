package domain

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks
var (
	// ErrConfiguration marks a malformed rule set, filter list or settings file.
	// It is fatal before the crawl starts.
	ErrConfiguration = errors.New("configuration error")

	// ErrConnection marks a failure to establish a session with a device
	ErrConnection = errors.New("connection failed")

	// ErrCommand marks a failure to run a command on an established session
	ErrCommand = errors.New("command failed")

	// ErrNotFound is returned by stores when a key is unknown
	ErrNotFound = errors.New("device not found")

	// ErrStopped is returned when work is requested from a draining crawl
	ErrStopped = errors.New("crawl stopped")
)

// ConfigurationError describes a configuration problem found at load time
type ConfigurationError struct {
	Source string // file, rule set or setting the problem was found in
	Reason string
	Err    error
}

// NewConfigurationError creates a ConfigurationError
func NewConfigurationError(source, reason string) *ConfigurationError {
	return &ConfigurationError{Source: source, Reason: reason}
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration error in %s: %s", e.Source, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// ConnectionError is a failure to connect to a target
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// CommandError is a failure to execute a command on a connected target
type CommandError struct {
	Target  string
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("run %q on %s: %v", e.Command, e.Target, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

func (e *CommandError) Is(target error) bool { return target == ErrCommand }

// IsRetryable reports whether a per-device failure should go through the retry
// path. Timeouts count as connection failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrConnection) ||
		errors.Is(err, ErrCommand) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ParseAnomaly describes a line that matched a pattern textually but whose
// captured value failed shape validation. The slot is left unbound.
type ParseAnomaly struct {
	Rule    string
	Slot    string
	Shape   string
	Value   string
	LineNum int
	Line    string
}

func (a ParseAnomaly) String() string {
	return fmt.Sprintf("%s line %d: slot %s value %q is not %s", a.Rule, a.LineNum, a.Slot, a.Value, a.Shape)
}
