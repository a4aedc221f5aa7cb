package engine

import (
	"strconv"

	"github.com/dop251/goja"
)

const nativeSourceName = "<native>"

// CallSite is the typed view of one frame captured by the runtime.
type CallSite struct {
	FileName     string
	FunctionName string
	MethodName   string
	TypeName     string
	LineNumber   int
}

// diagnostic is the location record used for message prefixes and for the
// synthetic frame of exceptions that carry no stack.
type diagnostic struct {
	Resource string
	Line     int
}

func (d diagnostic) prefix() string {
	if d.Resource == "" {
		return ""
	}
	if d.Line > 0 {
		return d.Resource + ":" + strconv.Itoa(d.Line) + " - "
	}
	return d.Resource + " - "
}

func (d diagnostic) frame() StackFrame {
	f := StackFrame{TypeName: UnknownName, Name: UnknownName, File: d.Resource, Line: LineUnknown}
	switch {
	case d.Resource == "":
		f.Line = LineNative
	case d.Line > 0:
		f.Line = d.Line
	}
	return f
}

// BridgeToHost converts a script exception into a *ScriptError. When the
// thrown value carries a host fault, a held *ScriptError is returned as is
// and any other held error becomes the Cause. It must be called with the
// engine lock held.
func (e *JsEngine) BridgeToHost(ex *goja.Exception) *ScriptError {
	val := ex.Value()
	obj, isObj := val.(*goja.Object)

	var cause error
	if isObj {
		if env, ok := e.faults.lookup(obj); ok {
			if fault := env.hostFault(); fault != nil {
				if se, ok := fault.(*ScriptError); ok {
					return se
				}
				cause = fault
			}
		}
	}

	diag := e.diagnosticOf(ex, obj)
	message, ok := e.errorMessage(obj, diag)
	if !ok {
		message = e.stringOf(val)
	}

	frames := framesFromCallSites(captureCallSites(ex.Stack()))
	if len(frames) == 0 {
		frames = []StackFrame{diag.frame()}
	}

	return &ScriptError{
		Message: message,
		Value:   e.exportOf(val),
		Cause:   cause,
		Frames:  frames,
	}
}

// errorMessage builds "[name] message" from an error-like object. Syntax
// errors are prefixed with their source location.
func (e *JsEngine) errorMessage(obj *goja.Object, diag diagnostic) (string, bool) {
	if obj == nil {
		return "", false
	}
	name, hasName := e.stringProp(obj, "name")
	msg, hasMsg := e.stringProp(obj, "message")
	if !hasName && !hasMsg {
		return "", false
	}
	if !hasName {
		name = "undefined"
	}
	if !hasMsg {
		msg = "undefined"
	}
	if name == "SyntaxError" {
		msg = diag.prefix() + msg
	}
	return "[" + name + "] " + msg, true
}

func (e *JsEngine) stringProp(obj *goja.Object, key string) (string, bool) {
	var (
		s  string
		ok bool
	)
	if ex := e.vm.Try(func() {
		v := obj.Get(key)
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			return
		}
		s, ok = v.String(), true
	}); ex != nil {
		return "", false
	}
	return s, ok
}

func (e *JsEngine) stringOf(v goja.Value) string {
	if v == nil {
		return "undefined"
	}
	s := "<unprintable exception>"
	e.vm.Try(func() { s = v.String() })
	return s
}

func (e *JsEngine) exportOf(v goja.Value) (out interface{}) {
	if v == nil {
		return nil
	}
	if ex := e.vm.Try(func() { out = v.Export() }); ex != nil {
		return nil
	}
	return out
}

// diagnosticOf prefers the record attached to compile errors and otherwise
// uses the innermost frame that belongs to a script.
func (e *JsEngine) diagnosticOf(ex *goja.Exception, obj *goja.Object) diagnostic {
	if obj != nil {
		if v := obj.GetSymbol(e.diagnosticKey); v != nil {
			if d, ok := v.Export().(*diagnostic); ok {
				return *d
			}
		}
	}
	stack := ex.Stack()
	for i := range stack {
		f := &stack[i]
		if name := f.SrcName(); name != "" && name != nativeSourceName {
			return diagnostic{Resource: name, Line: f.Position().Line}
		}
	}
	return diagnostic{}
}

// captureCallSites reads the frames the runtime recorded for an exception,
// innermost first.
func captureCallSites(stack []goja.StackFrame) []CallSite {
	sites := make([]CallSite, 0, len(stack))
	for i := range stack {
		f := &stack[i]
		site := CallSite{FunctionName: f.FuncName()}
		if src := f.SrcName(); src != nativeSourceName {
			site.FileName = src
			site.LineNumber = f.Position().Line
		}
		sites = append(sites, site)
	}
	return sites
}

// framesFromCallSites applies the naming rules: unknown type, anonymous
// function, native frames without a file.
func framesFromCallSites(sites []CallSite) []StackFrame {
	frames := make([]StackFrame, 0, len(sites))
	for _, site := range sites {
		f := StackFrame{
			TypeName: site.TypeName,
			Name:     site.MethodName,
			File:     site.FileName,
		}
		if f.TypeName == "" {
			f.TypeName = UnknownName
		}
		if f.Name == "" {
			f.Name = site.FunctionName
		}
		if f.Name == "" || f.Name == nativeSourceName || f.Name == AnonymousName {
			f.Name = AnonymousName
		}
		switch {
		case f.File == "":
			f.Line = LineNative
		case site.LineNumber > 0:
			f.Line = site.LineNumber
		default:
			f.Line = LineUnknown
		}
		frames = append(frames, f)
	}
	return frames
}
