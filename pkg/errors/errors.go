package errors

import (
	"fmt"
	"io"
)

// FlybytesError is the interface implemented by all compiler errors.
type FlybytesError interface {
	error // Embed the standard error interface
	Pos() Position
	Kind() string // "Scope", "Stack" or "Link"
	// Message returns the specific error message without position info.
	Message() string
	Unwrap() error // For error wrapping support (errors.Is/As)
}

// Position identifies the construct an error is attached to: the enclosing
// method and, when the producer's tree carries one, a source line.
type Position struct {
	Method string
	Line   int
}

func (p Position) String() string {
	if p.Line > 0 {
		return fmt.Sprintf("%s (line %d)", p.Method, p.Line)
	}
	return p.Method
}

// --- Concrete Error Types ---

// ScopeError represents a structural or scope failure: duplicate local
// declaration, unresolved break/continue label, unbound jump label at
// finalization, or a malformed class/method shape.
type ScopeError struct {
	Position
	Msg   string
	Cause error // Underlying cause, if any
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("Scope Error in %s: %s", e.Position, e.Msg)
}
func (e *ScopeError) Pos() Position   { return e.Position }
func (e *ScopeError) Kind() string    { return "Scope" }
func (e *ScopeError) Message() string { return e.Msg }
func (e *ScopeError) Unwrap() error   { return e.Cause }
func (e *ScopeError) CausedBy(cause error) *ScopeError {
	e.Cause = cause
	return e
}

// StackError represents a stack/type discipline failure: operand category
// mismatch or operand-stack underflow. This is the compiler's primary
// defense against malformed input, since no upstream type checker is assumed.
type StackError struct {
	Position
	Msg   string
	Cause error
}

func (e *StackError) Error() string {
	return fmt.Sprintf("Stack Error in %s: %s", e.Position, e.Msg)
}
func (e *StackError) Pos() Position   { return e.Position }
func (e *StackError) Kind() string    { return "Stack" }
func (e *StackError) Message() string { return e.Msg }
func (e *StackError) Unwrap() error   { return e.Cause }
func (e *StackError) CausedBy(cause error) *StackError {
	e.Cause = cause
	return e
}

// LinkError represents a dynamic call-site linkage failure: a bootstrap
// method signature that does not match the signature inferred from the
// call site's constant arguments.
type LinkError struct {
	Position
	Msg   string
	Cause error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("Link Error in %s: %s", e.Position, e.Msg)
}
func (e *LinkError) Pos() Position   { return e.Position }
func (e *LinkError) Kind() string    { return "Link" }
func (e *LinkError) Message() string { return e.Msg }
func (e *LinkError) Unwrap() error   { return e.Cause }
func (e *LinkError) CausedBy(cause error) *LinkError {
	e.Cause = cause
	return e
}

// --- Constructors ---

// Scopef builds a ScopeError at pos with a formatted message.
func Scopef(pos Position, format string, args ...interface{}) *ScopeError {
	return &ScopeError{Position: pos, Msg: fmt.Sprintf(format, args...)}
}

// Stackf builds a StackError at pos with a formatted message.
func Stackf(pos Position, format string, args ...interface{}) *StackError {
	return &StackError{Position: pos, Msg: fmt.Sprintf(format, args...)}
}

// Linkf builds a LinkError at pos with a formatted message.
func Linkf(pos Position, format string, args ...interface{}) *LinkError {
	return &LinkError{Position: pos, Msg: fmt.Sprintf(format, args...)}
}

// --- Error Reporting ---

// DisplayErrors prints a list of compiler errors to w, one per line,
// grouped in the order they were reported.
func DisplayErrors(w io.Writer, errs []FlybytesError) {
	for _, err := range errs {
		fmt.Fprintln(w, err.Error())
	}
}
