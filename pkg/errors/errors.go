// Package errors provides the error taxonomy for uppaal2octopus.
// Every failure is a coded *ConvertError carrying context and a stack trace.
// All codes of the taxonomy are fatal to a conversion run.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Code identifies an error kind for programmatic handling.
type Code string

const (
	// Input errors (1xx)
	CodeInvalidFormat Code = "E101"
	CodeMissingClock  Code = "E102"

	// Conversion errors (2xx)
	CodeNoPath         Code = "E201"
	CodeUnmatchedEnd   Code = "E202"
	CodeUnmatchedStart Code = "E203"

	// I/O errors (3xx)
	CodeIO          Code = "E301"
	CodeWriteFailed Code = "E302"

	// System errors (4xx)
	CodeContextCanceled Code = "E401"

	// Unknown
	CodeUnknown Code = "E999"
)

// Sentinels for errors.Is. Matching is by code only.
var (
	ErrFormat         = &ConvertError{Code: CodeInvalidFormat, Message: "invalid format"}
	ErrMissingClock   = &ConvertError{Code: CodeMissingClock, Message: "missing clock"}
	ErrNoPath         = &ConvertError{Code: CodeNoPath, Message: "no path between clocks"}
	ErrUnmatchedEnd   = &ConvertError{Code: CodeUnmatchedEnd, Message: "end without start"}
	ErrUnmatchedStart = &ConvertError{Code: CodeUnmatchedStart, Message: "start while interval pending"}
)

// ConvertError is the base error type for all conversion errors.
type ConvertError struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface. Context keys are rendered in
// sorted order so messages are stable.
func (e *ConvertError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *ConvertError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target error.
func (e *ConvertError) Is(target error) bool {
	if t, ok := target.(*ConvertError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *ConvertError) WithContext(key string, value interface{}) *ConvertError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new ConvertError.
func New(code Code, message string) *ConvertError {
	return &ConvertError{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Newf creates a new ConvertError with a formatted message.
func Newf(code Code, format string, args ...interface{}) *ConvertError {
	return &ConvertError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code Code, message string) *ConvertError {
	if err == nil {
		return nil
	}

	return &ConvertError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *ConvertError {
	if err == nil {
		return nil
	}

	return &ConvertError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *ConvertError) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Taxonomy constructors ---

// Format creates a FormatError for a malformed section, line or record.
func Format(stage, message string) *ConvertError {
	return New(CodeInvalidFormat, message).WithContext("stage", stage)
}

// Formatf is Format with a formatted message.
func Formatf(stage, format string, args ...interface{}) *ConvertError {
	return Newf(CodeInvalidFormat, format, args...).WithContext("stage", stage)
}

// MissingClock creates a MissingClockError for a clock absent from the
// model or a state without a bound on the active clock.
func MissingClock(stage, clock string) *ConvertError {
	return New(CodeMissingClock, "cannot find clock").
		WithContext("stage", stage).
		WithContext("clock", clock)
}

// NoPath creates a NoPathError for a zone graph that does not connect
// the origin clock to the active clock.
func NoPath(from, to string) *ConvertError {
	return New(CodeNoPath, "zone does not connect clocks").
		WithContext("stage", "clock").
		WithContext("from", from).
		WithContext("to", to)
}

// UnmatchedEnd creates an UnmatchedEndError for an end fact that has no
// pending start.
func UnmatchedEnd(process string) *ConvertError {
	return New(CodeUnmatchedEnd, "received end without a corresponding start").
		WithContext("stage", "converter").
		WithContext("process", process)
}

// UnmatchedStart creates an UnmatchedStartError for a start fact that
// arrives while an interval is still pending for the same process.
func UnmatchedStart(process string) *ConvertError {
	return New(CodeUnmatchedStart, "received start while an interval is pending").
		WithContext("stage", "converter").
		WithContext("process", process)
}

// ContextCanceled creates a cancellation error.
func ContextCanceled(operation string) *ConvertError {
	return New(CodeContextCanceled, "operation canceled").
		WithContext("operation", operation)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var cErr *ConvertError
	if errors.As(err, &cErr) {
		return cErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var cErr *ConvertError
	if errors.As(err, &cErr) {
		return cErr.Code
	}
	return CodeUnknown
}

// IsFatal returns true if the error aborts a conversion run.
// Only cancellation is not classified as fatal.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeContextCanceled:
		return false
	default:
		return err != nil
	}
}

// MultiError collects the failures of independent conversions, such as
// the traces of one batch.
type MultiError struct {
	Errors []error
}

// Error lists every collected error on its own line.
func (m *MultiError) Error() string {
	switch len(m.Errors) {
	case 0:
		return "no errors"
	case 1:
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d conversions failed:", len(m.Errors))
	for _, err := range m.Errors {
		sb.WriteString("\n  ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Add records err unless it is nil.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors reports whether anything was recorded.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil, the only error, or m itself.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
