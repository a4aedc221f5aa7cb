package engine

import (
	"runtime"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/charmbracelet/log"
	"github.com/dop251/goja"
)

const defaultHostFaultMessage = "An exception was thrown in the host"

// envelope ties a host error to the script error object that carries it.
// It never references the object strongly, so the object stays collectable.
type envelope struct {
	refs  *hostRefs
	key   weak.Pointer[goja.Object]
	fault error
	done  atomic.Bool
}

func (env *envelope) hostFault() error {
	env.refs.mu.Lock()
	defer env.refs.mu.Unlock()
	return env.fault
}

// release drops the held host error. Only the first call has an effect.
func (env *envelope) release() bool {
	if !env.done.CompareAndSwap(false, true) {
		return false
	}

	r := env.refs
	r.mu.Lock()
	delete(r.byObject, env.key)
	fault := env.fault
	env.fault = nil
	r.live--
	hook := r.onRelease
	r.mu.Unlock()

	r.logger.Debug("host fault released", "error", fault)
	if hook != nil {
		hook(fault)
	}
	return true
}

// hostRefs is the table of live envelopes, keyed weakly by the script error
// object. Lookups from script objects are private to the host.
type hostRefs struct {
	mu        sync.Mutex
	byObject  map[weak.Pointer[goja.Object]]*envelope
	live      int
	logger    *log.Logger
	onRelease func(error)
}

func newHostRefs(logger *log.Logger, onRelease func(error)) *hostRefs {
	return &hostRefs{
		byObject:  make(map[weak.Pointer[goja.Object]]*envelope),
		logger:    logger,
		onRelease: onRelease,
	}
}

// attach records fault against obj and schedules its release for when obj
// becomes unreachable.
func (r *hostRefs) attach(obj *goja.Object, fault error) *envelope {
	key := weak.Make(obj)
	env := &envelope{refs: r, key: key, fault: fault}

	r.mu.Lock()
	r.byObject[key] = env
	r.live++
	r.mu.Unlock()

	runtime.AddCleanup(obj, func(env *envelope) { env.release() }, env)
	return env
}

func (r *hostRefs) lookup(obj *goja.Object) (*envelope, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	env, ok := r.byObject[weak.Make(obj)]
	return env, ok
}

func (r *hostRefs) liveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

func (r *hostRefs) releaseAll() int {
	r.mu.Lock()
	pending := make([]*envelope, 0, len(r.byObject))
	for _, env := range r.byObject {
		pending = append(pending, env)
	}
	r.mu.Unlock()

	n := 0
	for _, env := range pending {
		if env.release() {
			n++
		}
	}
	return n
}

// WrapHostFault converts a Go error into a script-visible HostError that
// carries the error. Raising the returned object and catching it on the way
// out through BridgeToHost yields the same error again. A nil error yields
// (nil, false). It must be called with the engine lock held.
func (e *JsEngine) WrapHostFault(err error) (*goja.Object, bool) {
	if err == nil {
		return nil, false
	}

	obj := e.newHostError(err.Error())
	e.faults.attach(obj, err)
	return obj, true
}

func (e *JsEngine) newHostError(message string) *goja.Object {
	if message == "" {
		message = defaultHostFaultMessage
	}
	obj, err := e.vm.New(e.vm.Get("Error"), e.vm.ToValue(message))
	if err != nil {
		obj = e.vm.NewObject()
		_ = obj.Set("message", message)
	}
	if e.hostErrorType != nil {
		if proto := e.hostErrorType.Get("prototype"); proto != nil {
			_ = obj.SetPrototype(proto.ToObject(e.vm))
		}
	}
	return obj
}

func (e *JsEngine) throwHostFault(err error) {
	obj, _ := e.WrapHostFault(err)
	panic(obj)
}
