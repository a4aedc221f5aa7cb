package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
)

const (
	TypeEngineJs = "js"
)

// JsEngine is the JavaScript backend. One engine owns one event loop and its
// goja runtime, the module cache, native module registry and host fault
// table. Every call into script code happens with the engine lock held,
// whether it comes from a host goroutine or from a loop job.
type JsEngine struct {
	mu    sync.Mutex
	scope context.Context

	loop    *eventloop.EventLoop
	started time.Time

	vm     *goja.Runtime
	opts   Options
	logger *log.Logger
	ready  bool
	closed bool

	cache    *moduleCache
	registry *moduleRegistry
	loading  map[string]*goja.Object

	faults        *hostRefs
	diagnosticKey *goja.Symbol
	hostErrorType *goja.Object
	parseJSONFn   goja.Callable
	stringifyFn   goja.Callable
}

var _ Engine = (*JsEngine)(nil)

type engineLockKey struct{}

// lockHold marks one acquisition of the engine lock. Contexts carrying a
// hold re-enter the engine only while that acquisition is still current.
type lockHold struct {
	e      *JsEngine
	active atomic.Bool
}

// NewJsEngine creates and initializes a JavaScript engine.
func NewJsEngine(opts Options) (*JsEngine, error) {
	e := &JsEngine{}
	if err := e.Init(opts); err != nil {
		return nil, err
	}
	return e, nil
}

// Init creates the runtime and installs the embedder globals and built-in
// modules. InitializeGlobal must have been called first.
func (e *JsEngine) Init(opts Options) error {
	if !globalInitialized() {
		return ErrGlobalNotInitialized
	}

	e.opts = opts.withDefaults(TypeEngineJs)
	e.logger = e.opts.Logger
	e.loop = eventloop.NewEventLoop(eventloop.EnableConsole(false))
	e.loop.Run(func(vm *goja.Runtime) { e.vm = vm })
	e.started = time.Now()
	e.cache = newModuleCache()
	e.registry = newModuleRegistry()
	e.loading = make(map[string]*goja.Object)
	e.faults = newHostRefs(e.logger, e.opts.OnHostFaultReleased)
	e.diagnosticKey = goja.NewSymbol("ScriptDiagnostic")
	e.ready = false
	e.closed = false

	if err := e.installBindings(); err != nil {
		return fmt.Errorf("installing bindings: %w", err)
	}
	if err := e.installGlobals(); err != nil {
		return fmt.Errorf("installing globals: %w", err)
	}
	e.registerBuiltins()
	e.loop.Start()
	return nil
}

// enter acquires the engine lock unless ctx carries the hold of the
// acquisition that is currently in progress. The returned context must only
// be used on the calling goroutine and only until leave is called.
func (e *JsEngine) enter(ctx context.Context) (context.Context, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if h, _ := ctx.Value(engineLockKey{}).(*lockHold); h != nil && h.e == e && h.active.Load() {
		return ctx, func() {}
	}
	e.mu.Lock()
	h := &lockHold{e: e}
	h.active.Store(true)
	scoped := context.WithValue(ctx, engineLockKey{}, h)
	e.scope = scoped
	return scoped, func() {
		h.active.Store(false)
		e.scope = nil
		e.mu.Unlock()
	}
}

func (e *JsEngine) usable() error {
	switch {
	case e.vm == nil:
		return ErrEngineNotReady
	case e.closed:
		return ErrEngineClosed
	}
	return nil
}

// Runtime returns the goja runtime owned by the engine's event loop. It must
// only be used while the engine lock is held, for example from a
// NativeModuleFunc or a registered host function.
func (e *JsEngine) Runtime() *goja.Runtime {
	return e.vm
}

// Logger returns the engine logger.
func (e *JsEngine) Logger() *log.Logger {
	return e.logger
}

func (e *JsEngine) IsReady() bool {
	return e.ready
}

func (e *JsEngine) SetReady() {
	e.ready = true
}

// ParseString runs source as a global script.
func (e *JsEngine) ParseString(source string) error {
	_, err := e.RunString(context.Background(), "<eval>", source)
	return err
}

// RunString runs source as a global script named name and returns its
// completion value.
func (e *JsEngine) RunString(ctx context.Context, name, source string) (goja.Value, error) {
	_, leave := e.enter(ctx)
	defer leave()
	if err := e.usable(); err != nil {
		return nil, err
	}

	v, err := e.run(name, source)
	return v, e.hostError(err)
}

// ParseFile runs the file at path as a global script. The file is read
// through the configured FileLoader.
func (e *JsEngine) ParseFile(path string) error {
	_, leave := e.enter(context.Background())
	defer leave()
	if err := e.usable(); err != nil {
		return err
	}

	src, ok := e.opts.Files.LoadFile(path)
	if !ok {
		return &ModuleNotFoundError{ID: path}
	}
	_, err := e.run(path, string(src))
	return e.hostError(err)
}

func (e *JsEngine) run(name, source string) (goja.Value, error) {
	prg, err := e.compile(name, source)
	if err != nil {
		return nil, err
	}
	return e.vm.RunProgram(prg)
}

// Require loads a module the way a top level script's require would.
func (e *JsEngine) Require(id string) (goja.Value, error) {
	return e.RequireContext(context.Background(), id)
}

// RequireContext is Require with an explicit context. A context handed to a
// host function by the engine re-enters without taking the lock again.
func (e *JsEngine) RequireContext(ctx context.Context, id string) (goja.Value, error) {
	_, leave := e.enter(ctx)
	defer leave()
	if err := e.usable(); err != nil {
		return nil, err
	}

	v, err := e.require(id)
	return v, e.hostError(err)
}

// RegisterNativeModule makes name resolvable by require without touching
// the filesystem. It replaces any built-in of the same name.
func (e *JsEngine) RegisterNativeModule(name string, fn NativeModuleFunc) {
	_, leave := e.enter(context.Background())
	defer leave()

	if replaced := e.registry.register(hostModule, name, fn); replaced {
		e.logger.Warn("native module replaced", "module", name)
	}
	if e.cache.Delete(name) {
		e.logger.Debug("evicted cached module", "module", name)
	}
}

// NativeModules lists the registered native module names in sorted order.
func (e *JsEngine) NativeModules() []string {
	_, leave := e.enter(context.Background())
	defer leave()

	return e.registry.names()
}

func (e *JsEngine) RegisterObject(objectName string, objectPtr interface{}) {
	_, leave := e.enter(context.Background())
	defer leave()

	_ = e.vm.Set(objectName, objectPtr)
}

// RegisterFunction exposes a Go function as a global. Arguments are
// converted with ExportTo. A leading context.Context parameter receives a
// context that may be used to call back into the engine. A non-nil trailing
// error result is raised in script space as a HostError.
func (e *JsEngine) RegisterFunction(goFuncName string, goFuncPtr interface{}) {
	_, leave := e.enter(context.Background())
	defer leave()

	_ = e.vm.Set(goFuncName, e.wrapHostFunc(goFuncName, goFuncPtr))
}

// RegisterModule registers a host module whose exports are the given Go
// functions, wrapped like RegisterFunction.
func (e *JsEngine) RegisterModule(moduleName string, moduleFuncPtr map[string]interface{}) {
	funcs := make(map[string]interface{}, len(moduleFuncPtr))
	for k, v := range moduleFuncPtr {
		funcs[k] = v
	}
	e.RegisterNativeModule(moduleName, func(e *JsEngine, module *goja.Object) error {
		exports := module.Get("exports").ToObject(e.vm)
		for name, fn := range funcs {
			if err := exports.Set(name, e.wrapHostFunc(moduleName+"."+name, fn)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *JsEngine) IsFunction(scriptFuncName string) bool {
	_, leave := e.enter(context.Background())
	defer leave()
	if e.usable() != nil {
		return false
	}

	_, ok := goja.AssertFunction(e.vm.Get(scriptFuncName))
	return ok
}

// Call invokes the global function scriptFuncName. With retNum 1 the
// exported result is returned; with a larger retNum an array result is
// spread over up to retNum values.
func (e *JsEngine) Call(scriptFuncName string, retNum int, args ...interface{}) ([]interface{}, error) {
	return e.CallContext(context.Background(), scriptFuncName, retNum, args...)
}

// CallContext is Call with an explicit context.
func (e *JsEngine) CallContext(ctx context.Context, scriptFuncName string, retNum int, args ...interface{}) ([]interface{}, error) {
	_, leave := e.enter(ctx)
	defer leave()
	if err := e.usable(); err != nil {
		return nil, err
	}

	fn, ok := goja.AssertFunction(e.vm.Get(scriptFuncName))
	if !ok {
		return nil, fmt.Errorf("%s: %w", scriptFuncName, ErrNotFunction)
	}

	jsArgs := make([]goja.Value, len(args))
	for i, arg := range args {
		jsArgs[i] = e.vm.ToValue(arg)
	}
	result, err := fn(goja.Undefined(), jsArgs...)
	if err != nil {
		return nil, e.hostError(err)
	}
	return e.spreadResult(result, retNum), nil
}

func (e *JsEngine) spreadResult(result goja.Value, retNum int) []interface{} {
	if retNum <= 0 {
		return nil
	}
	if retNum == 1 {
		return []interface{}{result.Export()}
	}
	rets := make([]interface{}, retNum)
	if list, ok := result.Export().([]interface{}); ok {
		copy(rets, list)
		return rets
	}
	rets[0] = result.Export()
	return rets
}

// ParseJSON parses text with the runtime's JSON.parse.
func (e *JsEngine) ParseJSON(ctx context.Context, text string) (goja.Value, error) {
	_, leave := e.enter(ctx)
	defer leave()
	if err := e.usable(); err != nil {
		return nil, err
	}

	v, err := e.parseJSON(text)
	return v, e.hostError(err)
}

// StringifyJSON serializes v with the runtime's JSON.stringify, indenting by
// four spaces when pretty is set.
func (e *JsEngine) StringifyJSON(ctx context.Context, v interface{}, pretty bool) (string, error) {
	_, leave := e.enter(ctx)
	defer leave()
	if err := e.usable(); err != nil {
		return "", err
	}

	s, err := e.stringifyJSON(e.vm.ToValue(v), pretty)
	return s, e.hostError(err)
}

// LiveHostFaults reports how many host faults are still referenced from
// script space.
func (e *JsEngine) LiveHostFaults() int {
	return e.faults.liveCount()
}

// Close releases every host fault still held by script objects and
// terminates the event loop, dropping pending timers. The engine is unusable
// afterwards. Close must not be called from a script callback.
func (e *JsEngine) Close() {
	_, leave := e.enter(context.Background())
	if e.closed || e.vm == nil {
		leave()
		return
	}
	e.closed = true
	if n := e.faults.releaseAll(); n > 0 {
		e.logger.Debug("released host faults on close", "count", n)
	}
	leave()

	// Jobs blocked on the lock see closed and return, so the loop can drain.
	e.loop.Terminate()
}

// hostError converts errors coming out of the runtime into host errors.
// Script exceptions become *ScriptError; everything else passes through.
func (e *JsEngine) hostError(err error) error {
	if err == nil {
		return nil
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return e.BridgeToHost(ex)
	}
	return err
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

func (e *JsEngine) wrapHostFunc(name string, fn interface{}) func(goja.FunctionCall) goja.Value {
	fnVal := reflect.ValueOf(fn)
	if fnVal.Kind() != reflect.Func {
		panic("register invalid function: " + name)
	}
	fnType := fnVal.Type()
	numIn := fnType.NumIn()
	withCtx := numIn > 0 && fnType.In(0) == contextType
	returnsErr := fnType.NumOut() > 0 && fnType.Out(fnType.NumOut()-1) == errorType

	return func(call goja.FunctionCall) goja.Value {
		in := make([]reflect.Value, 0, numIn)
		arg := 0
		for i := 0; i < numIn; i++ {
			if i == 0 && withCtx {
				ctx := e.scope
				if ctx == nil {
					ctx = context.Background()
				}
				in = append(in, reflect.ValueOf(&ctx).Elem())
				continue
			}
			paramType := fnType.In(i)
			if fnType.IsVariadic() && i == numIn-1 {
				elemType := paramType.Elem()
				for ; arg < len(call.Arguments); arg++ {
					in = append(in, e.exportArg(name, call.Argument(arg), arg, elemType))
				}
				break
			}
			in = append(in, e.exportArg(name, call.Argument(arg), arg, paramType))
			arg++
		}

		out := fnVal.Call(in)
		if returnsErr {
			if errVal := out[len(out)-1]; !errVal.IsNil() {
				e.throwHostFault(errVal.Interface().(error))
			}
			out = out[:len(out)-1]
		}

		switch len(out) {
		case 0:
			return goja.Undefined()
		case 1:
			return e.vm.ToValue(out[0].Interface())
		}
		rets := make([]interface{}, len(out))
		for i, v := range out {
			rets[i] = v.Interface()
		}
		return e.vm.ToValue(rets)
	}
}

func (e *JsEngine) exportArg(name string, v goja.Value, index int, typ reflect.Type) reflect.Value {
	ptr := reflect.New(typ)
	if err := e.vm.ExportTo(v, ptr.Interface()); err != nil {
		panic(e.vm.NewTypeError(fmt.Sprintf("%s: argument %d: %v", name, index, err)))
	}
	return ptr.Elem()
}
