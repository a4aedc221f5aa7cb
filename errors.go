package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors for known conditions.
var (
	// ErrModuleNotFound indicates that no resolution candidate exists.
	ErrModuleNotFound = errors.New("module not found")

	// ErrEngineClosed indicates use of an engine after Close.
	ErrEngineClosed = errors.New("engine closed")

	// ErrEngineNotReady indicates use of an engine before Init.
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrNotFunction indicates that a called global is not callable.
	ErrNotFunction = errors.New("not a function")

	// ErrGlobalNotInitialized indicates InitializeGlobal was never called.
	ErrGlobalNotInitialized = errors.New("script runtime not initialized")

	// ErrGlobalAlreadyInitialized is returned by a second InitializeGlobal.
	ErrGlobalAlreadyInitialized = errors.New("script runtime already initialized")
)

// ModuleNotFoundError reports a require that exhausted every candidate.
type ModuleNotFoundError struct {
	ID string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("Cannot find module '%s'", e.ID)
}

// Is matches ErrModuleNotFound.
func (e *ModuleNotFoundError) Is(target error) bool {
	return target == ErrModuleNotFound
}

// LoadErrorKind classifies module load failures.
type LoadErrorKind string

const (
	// KindEvaluation means module code threw, or failed to compile.
	KindEvaluation LoadErrorKind = "evaluation"
	// KindJSONParse means a .json module or package.json did not parse.
	KindJSONParse LoadErrorKind = "json"
	// KindNativeModule means a native module callback failed.
	KindNativeModule LoadErrorKind = "native"
)

// LoadError wraps a failure raised while loading a resolved module.
type LoadError struct {
	Kind LoadErrorKind
	ID   string
	File string
	Err  error
}

func (e *LoadError) Error() string {
	if e == nil {
		return ""
	}
	if e.File != "" && e.File != e.ID {
		return fmt.Sprintf("%s: loading %s (%s): %v", e.Kind, e.ID, e.File, e.Err)
	}
	return fmt.Sprintf("%s: loading %s: %v", e.Kind, e.ID, e.Err)
}

func (e *LoadError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
