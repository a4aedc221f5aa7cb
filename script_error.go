package engine

import (
	"strconv"
	"strings"
)

// Line sentinels for StackFrame.
const (
	// LineUnknown marks a frame whose file is known but whose line is not.
	LineUnknown = -1
	// LineNative marks a frame without script source.
	LineNative = -2
)

// Placeholder names used when a call site does not provide one.
const (
	UnknownName   = "<unknown>"
	AnonymousName = "<anonymous>"
)

// StackFrame is one script call site, innermost first in ScriptError.Frames.
type StackFrame struct {
	TypeName string
	Name     string
	// File is empty for native frames.
	File string
	// Line is a 1-based line number, LineUnknown or LineNative.
	Line int
}

// IsNative reports whether the frame has no script source.
func (f StackFrame) IsNative() bool {
	return f.Line == LineNative
}

func (f StackFrame) String() string {
	var b strings.Builder
	b.WriteString(f.TypeName)
	b.WriteByte('.')
	b.WriteString(f.Name)
	b.WriteByte('(')
	switch {
	case f.IsNative():
		b.WriteString("Native Method")
	case f.Line == LineUnknown && f.File != "":
		b.WriteString(f.File)
	case f.Line == LineUnknown:
		b.WriteString("Unknown Source")
	default:
		b.WriteString(f.File)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(f.Line))
	}
	b.WriteByte(')')
	return b.String()
}

// ScriptError is a script exception surfaced into the host.
type ScriptError struct {
	// Message is "[<ErrorName>] <message>", or the string conversion of
	// thrown values that are not error objects.
	Message string

	// Value is the thrown value exported to Go, best effort.
	Value interface{}

	// Cause is the host error that originally entered script space, if any.
	Cause error

	Frames []StackFrame
}

func (e *ScriptError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *ScriptError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// StackTrace renders the frames one per line, followed by the cause chain.
func (e *ScriptError) StackTrace() string {
	var b strings.Builder
	for _, f := range e.Frames {
		b.WriteString("\tat ")
		b.WriteString(f.String())
		b.WriteByte('\n')
	}
	if e.Cause != nil {
		b.WriteString("Caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte('\n')
	}
	return b.String()
}
