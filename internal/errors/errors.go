// Package errors provides a structured, typed error type for the scan and
// stitch pipeline. Every error raised by the engine carries a closed Kind so
// callers can branch on category without string matching.
package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// Kind is the closed set of error categories the engine can raise.
type Kind int

const (
	// KindConfig covers malformed or missing config.yaml settings.
	KindConfig Kind = iota
	// KindStore covers persistent-store open/read/write/migration failures.
	KindStore
	// KindParse covers per-file parser failures (a single file could not be
	// decoded; scanning continues for the rest of the repository).
	KindParse
	// KindDanglingReference is informational, not fatal: an edge pointed at
	// a node id that was never materialized by any extractor and had to be
	// backfilled with a placeholder "unknown" node.
	KindDanglingReference
	// KindAmbiguity covers an artifact-id substring that resolved to more
	// than one node.
	KindAmbiguity
	// KindCancelled covers a scan or analysis aborted via context
	// cancellation or deadline.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "CONFIG"
	case KindStore:
		return "STORE"
	case KindParse:
		return "PARSE"
	case KindDanglingReference:
		return "DANGLING_REFERENCE"
	case KindAmbiguity:
		return "AMBIGUITY"
	case KindCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Severity records how an Error should be handled by its caller.
type Severity int

const (
	// SeverityInfo - purely informational, safe to log and continue.
	SeverityInfo Severity = iota
	// SeverityWarn - degraded result, caller should continue.
	SeverityWarn
	// SeverityFatal - caller must abort the current operation.
	SeverityFatal
)

// Error is the structured error type used across the engine.
type Error struct {
	Kind       Kind
	Severity   Severity
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap lets errors.Is/As see through to the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair for DetailedString output.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is matches on Kind, ignoring message/cause, so callers can do
// errors.Is(err, &Error{Kind: KindStore}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// IsFatal reports whether the current operation must abort.
func (e *Error) IsFatal() bool {
	return e.Severity == SeverityFatal
}

// DetailedString renders kind, severity, message, cause, context and stack.
func (e *Error) DetailedString() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] [%s] %s\n", e.Severity, e.Kind, e.Message))
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("caused by: %v\n", e.Cause))
	}
	if len(e.Context) > 0 {
		sb.WriteString("context:\n")
		for k, v := range e.Context {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, v))
		}
	}
	if e.StackTrace != "" {
		sb.WriteString(fmt.Sprintf("stack:\n%s\n", e.StackTrace))
	}
	return sb.String()
}

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarn:
		return "WARN"
	case SeverityFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func captureStackTrace(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		sb.WriteString(fmt.Sprintf("  %s:%d %s\n", file, line, fn.Name()))
	}
	return sb.String()
}

// New creates a new Error of the given kind and severity.
func New(kind Kind, severity Severity, message string) *Error {
	return &Error{
		Kind:       kind,
		Severity:   severity,
		Message:    message,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// Wrap attaches kind/severity/message to an existing error. Returns nil if
// err is nil, so it composes with `if err := f(); err != nil { return Wrap(...) }`.
func Wrap(err error, kind Kind, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:       kind,
		Severity:   severity,
		Message:    message,
		Cause:      err,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// ConfigError creates a fatal config error.
func ConfigError(message string) *Error { return New(KindConfig, SeverityFatal, message) }

// ConfigErrorf formats and creates a fatal config error.
func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(KindConfig, SeverityFatal, fmt.Sprintf(format, args...))
}

// StoreError wraps a store-layer failure as fatal.
func StoreError(err error, message string) *Error {
	return Wrap(err, KindStore, SeverityFatal, message)
}

// StoreErrorf wraps and formats a store-layer failure as fatal.
func StoreErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, KindStore, SeverityFatal, fmt.Sprintf(format, args...))
}

// ParseError wraps a single-file parse failure as a warning: the pipeline
// contract requires the rest of the scan to continue.
func ParseError(err error, path string) *Error {
	return Wrap(err, KindParse, SeverityWarn, fmt.Sprintf("failed to parse %s", path)).
		WithContext("path", path)
}

// DanglingReference records an edge target that had to be backfilled with a
// placeholder "unknown" node. Never fatal.
func DanglingReference(nodeID string) *Error {
	return New(KindDanglingReference, SeverityInfo, fmt.Sprintf("dangling reference to %s", nodeID)).
		WithContext("node_id", nodeID)
}

// AmbiguityError reports a substring id resolution matching more than one node.
func AmbiguityError(substr string, candidates []string) *Error {
	return New(KindAmbiguity, SeverityWarn, fmt.Sprintf("%q matches %d nodes", substr, len(candidates))).
		WithContext("substring", substr).
		WithContext("candidates", candidates)
}

// Cancelled wraps context cancellation/deadline errors.
func Cancelled(err error) *Error {
	return Wrap(err, KindCancelled, SeverityFatal, "operation cancelled")
}

// IsFatal reports whether err (if it is an *Error) must abort the caller.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok {
		return e.IsFatal()
	}
	return false
}

// GetKind extracts the Kind of err, defaulting to KindParse for unknown errors.
func GetKind(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindParse
}
