package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Procedure error, invalid specs, failed scenarios
	ExitCommandError = 2 // Command error (bad flags, unreadable config, missing paths)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
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
// Returns ExitSuccess for nil and ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
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

// CLIResponse is the JSON envelope for CLI output. It has the same shape as
// the HTTP responses.
type CLIResponse struct {
	Status    string    `json:"status"`               // "ok" or "error"
	Data      any       `json:"data,omitempty"`       // success payload
	Error     *CLIError `json:"error,omitempty"`      // error details
	RequestID string    `json:"request_id,omitempty"` // engine request ID, when one was assigned
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "NOT_FOUND", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// JSON reports whether output is JSON.
func (f *OutputFormatter) JSON() bool { return f.Format == "json" }

// Envelope writes resp as one JSON line.
func (f *OutputFormatter) Envelope(resp CLIResponse) error {
	return json.NewEncoder(f.Writer).Encode(resp)
}

// Success outputs a successful result. Text output prints strings as-is and
// anything else as indented JSON.
func (f *OutputFormatter) Success(data any) error {
	if f.JSON() {
		return f.Envelope(CLIResponse{Status: "ok", Data: data})
	}
	if s, ok := data.(string); ok {
		_, err := fmt.Fprintln(f.Writer, s)
		return err
	}
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(f.Writer, "%s\n", out)
	return err
}

// Result outputs an already-encoded procedure result. Text output is
// re-indented; JSON output is wrapped in the envelope with the request ID.
func (f *OutputFormatter) Result(data json.RawMessage, requestID string) error {
	if f.JSON() {
		return f.Envelope(CLIResponse{Status: "ok", Data: data, RequestID: requestID})
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		return err
	}
	pretty.WriteByte('\n')
	_, err := pretty.WriteTo(f.Writer)
	return err
}

// Error outputs an error in the configured format. In text mode details are
// shown only with --verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	return f.ErrorWithRequest(code, message, details, "")
}

// ErrorWithRequest is Error carrying the engine request ID.
func (f *OutputFormatter) ErrorWithRequest(code, message string, details any, requestID string) error {
	if f.JSON() {
		return f.Envelope(CLIResponse{
			Status:    "error",
			Error:     &CLIError{Code: code, Message: message, Details: details},
			RequestID: requestID,
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		if d, err := json.Marshal(details); err == nil {
			fmt.Fprintf(f.Writer, "Details: %s\n", d)
		}
	}
	if f.Verbose && requestID != "" {
		fmt.Fprintf(f.Writer, "Request: %s\n", requestID)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
