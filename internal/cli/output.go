package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/tasksync/internal/config"
	"github.com/roach88/tasksync/internal/engine"
	"github.com/roach88/tasksync/internal/replica"
	"github.com/roach88/tasksync/internal/store"
	"github.com/roach88/tasksync/internal/task"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failure (sync failed, task not found, invalid input, etc.)
	ExitCommandError = 2 // Command error (bad flags, unreadable config, database cannot be opened, etc.)
)

// Error codes reported in the JSON error envelope.
const (
	ErrCodeGeneric    = "E001" // Generic/unknown error
	ErrCodeNotFound   = "E002" // Task not found
	ErrCodeValidation = "E003" // Invalid task input
	ErrCodeStorage    = "E004" // Local database failure
	ErrCodeSync       = "E005" // Sync session failed
	ErrCodeInProgress = "E006" // Another sync is running
	ErrCodeNoRemote   = "E007" // No remote configured
	ErrCodeConfig     = "E008" // Invalid configuration
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	// Reported is set when the error was already written to the output.
	Reported bool
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status  string      `json:"status"`           // "ok" or "error"
	Data    interface{} `json:"data,omitempty"`   // success payload
	Error   *CLIError   `json:"error,omitempty"`  // error details
	Session string      `json:"session,omitempty"` // optional sync session id
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // ErrCodeGeneric, ErrCodeNotFound, etc.
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// Fail reports err in the configured format and returns the ExitError the
// command should return. Known error kinds get their own code.
func (f *OutputFormatter) Fail(message string, err error) error {
	code, exit := classify(err)
	if outErr := f.Error(code, fmt.Sprintf("%s: %v", message, err), nil); outErr != nil {
		return outErr
	}
	exitErr := WrapExitError(exit, message, err)
	exitErr.Reported = true
	return exitErr
}

func classify(err error) (code string, exit int) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrCodeNotFound, ExitFailure
	case task.IsValidationError(err):
		return ErrCodeValidation, ExitFailure
	case engine.IsAlreadyInProgress(err), errors.Is(err, errSyncLocked):
		return ErrCodeInProgress, ExitFailure
	case errors.Is(err, replica.ErrNoRemote):
		return ErrCodeNoRemote, ExitCommandError
	case config.IsValidationError(err):
		return ErrCodeConfig, ExitCommandError
	}
	if _, ok := engine.PhaseOf(err); ok {
		return ErrCodeSync, ExitFailure
	}
	if store.IsStorageError(err) {
		return ErrCodeStorage, ExitFailure
	}
	return ErrCodeGeneric, ExitFailure
}
