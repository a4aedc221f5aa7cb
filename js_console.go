package engine

import (
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dop251/goja"
)

const traceDepth = 15

func (e *JsEngine) newConsole() *goja.Object {
	console := e.vm.NewObject()
	_ = console.Set("log", e.consoleFunc(log.InfoLevel))
	_ = console.Set("info", e.consoleFunc(log.InfoLevel))
	_ = console.Set("debug", e.consoleFunc(log.DebugLevel))
	_ = console.Set("warn", e.consoleFunc(log.WarnLevel))
	_ = console.Set("error", e.consoleFunc(log.ErrorLevel))
	_ = console.Set("assert", e.consoleAssert)
	_ = console.Set("trace", e.consoleTrace)
	return console
}

func (e *JsEngine) consoleFunc(level log.Level) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		e.logger.Log(level, e.joinArgs(call.Arguments))
		return goja.Undefined()
	}
}

func (e *JsEngine) consoleAssert(call goja.FunctionCall) goja.Value {
	if call.Argument(0).ToBoolean() {
		return goja.Undefined()
	}
	msg := "Assertion failed"
	if len(call.Arguments) > 1 {
		msg += ": " + e.joinArgs(call.Arguments[1:])
	}
	e.logger.Error(msg)
	return goja.Undefined()
}

func (e *JsEngine) consoleTrace(call goja.FunctionCall) goja.Value {
	var b strings.Builder
	b.WriteString("Trace")
	if len(call.Arguments) > 0 {
		b.WriteString(": ")
		b.WriteString(e.joinArgs(call.Arguments))
	}
	frames := framesFromCallSites(captureCallSites(e.vm.CaptureCallStack(traceDepth, nil)))
	for _, f := range frames {
		b.WriteString("\n\tat ")
		b.WriteString(f.String())
	}
	e.logger.Info(b.String())
	return goja.Undefined()
}

func (e *JsEngine) joinArgs(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		if s, ok := arg.Export().(string); ok {
			parts[i] = s
			continue
		}
		parts[i] = e.toDebugString(arg)
	}
	return strings.Join(parts, " ")
}
