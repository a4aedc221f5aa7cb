package engine

import (
	"context"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
)

const frameInterval = 16 * time.Millisecond

var timerFuncs = []string{
	"setTimeout", "setInterval", "setImmediate",
	"clearTimeout", "clearInterval", "clearImmediate",
}

// installTimers replaces the loop's own timer globals with ones whose
// callbacks run under the engine lock, and adds process.nextTick and the
// animation frame pair.
func (e *JsEngine) installTimers(global *goja.Object) error {
	funcs := map[string]func(goja.FunctionCall) goja.Value{
		"setTimeout":            func(call goja.FunctionCall) goja.Value { return e.schedule(call, false) },
		"setInterval":           func(call goja.FunctionCall) goja.Value { return e.schedule(call, true) },
		"setImmediate":          e.setImmediate,
		"clearTimeout":          e.clearTimer,
		"clearInterval":         e.clearTimer,
		"clearImmediate":        e.clearTimer,
		"requestAnimationFrame": e.requestAnimationFrame,
		"cancelAnimationFrame":  e.clearTimer,
	}
	for name, fn := range funcs {
		if err := global.Set(name, fn); err != nil {
			return err
		}
	}

	process := e.vm.NewObject()
	if err := process.Set("nextTick", e.nextTick); err != nil {
		return err
	}
	return global.Set("process", process)
}

// timerHandle is the value scripts get back from the scheduling globals.
// The loop clears its timers asynchronously, so cleared is what keeps a
// callback from running once a script has cancelled it. It is only touched
// with the engine lock held.
type timerHandle struct {
	timer    *eventloop.Timer
	interval *eventloop.Interval
	cleared  bool
}

// loopJob wraps a script callback for the event loop. The job takes the
// engine lock, is dropped once the engine is closed or h is cleared, and
// logs failures instead of propagating them.
func (e *JsEngine) loopJob(kind string, h *timerHandle, invoke func() (goja.Value, error)) func(*goja.Runtime) {
	return func(*goja.Runtime) {
		_, leave := e.enter(context.Background())
		defer leave()
		if e.closed || (h != nil && h.cleared) {
			return
		}
		if _, err := invoke(); err != nil {
			e.logger.Error("timer callback failed", "kind", kind, "error", e.hostError(err))
		}
	}
}

func (e *JsEngine) callback(call goja.FunctionCall, name string, argsFrom int) (goja.Callable, []goja.Value) {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(e.vm.NewTypeError(name + ": callback must be a function"))
	}
	var args []goja.Value
	if len(call.Arguments) > argsFrom {
		args = append(args, call.Arguments[argsFrom:]...)
	}
	return fn, args
}

func (e *JsEngine) schedule(call goja.FunctionCall, repeat bool) goja.Value {
	name := "setTimeout"
	if repeat {
		name = "setInterval"
	}
	fn, args := e.callback(call, name, 2)
	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}

	h := &timerHandle{}
	job := e.loopJob(name, h, func() (goja.Value, error) { return fn(goja.Undefined(), args...) })
	if repeat {
		if delay < time.Millisecond {
			delay = time.Millisecond
		}
		h.interval = e.loop.SetInterval(job, delay)
	} else {
		h.timer = e.loop.SetTimeout(job, delay)
	}
	return e.vm.ToValue(h)
}

func (e *JsEngine) setImmediate(call goja.FunctionCall) goja.Value {
	fn, args := e.callback(call, "setImmediate", 1)
	h := &timerHandle{}
	h.timer = e.loop.SetTimeout(e.loopJob("setImmediate", h, func() (goja.Value, error) {
		return fn(goja.Undefined(), args...)
	}), 0)
	return e.vm.ToValue(h)
}

func (e *JsEngine) nextTick(call goja.FunctionCall) goja.Value {
	fn, args := e.callback(call, "process.nextTick", 1)
	e.loop.RunOnLoop(e.loopJob("nextTick", nil, func() (goja.Value, error) {
		return fn(goja.Undefined(), args...)
	}))
	return goja.Undefined()
}

// requestAnimationFrame calls back on the next frame tick with the number of
// milliseconds since the engine started.
func (e *JsEngine) requestAnimationFrame(call goja.FunctionCall) goja.Value {
	fn, _ := e.callback(call, "requestAnimationFrame", 1)
	h := &timerHandle{}
	h.timer = e.loop.SetTimeout(e.loopJob("animationFrame", h, func() (goja.Value, error) {
		elapsed := float64(time.Since(e.started)) / float64(time.Millisecond)
		return fn(goja.Undefined(), e.vm.ToValue(elapsed))
	}), frameInterval)
	return e.vm.ToValue(h)
}

func (e *JsEngine) clearTimer(call goja.FunctionCall) goja.Value {
	h, ok := call.Argument(0).Export().(*timerHandle)
	if !ok || h.cleared {
		return goja.Undefined()
	}
	h.cleared = true
	if h.timer != nil {
		e.loop.ClearTimeout(h.timer)
	}
	if h.interval != nil {
		e.loop.ClearInterval(h.interval)
	}
	return goja.Undefined()
}
