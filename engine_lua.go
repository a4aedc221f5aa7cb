package engine

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/ailncode/gluaxmlpath"
	"github.com/charmbracelet/log"
	"github.com/ciaos/gluahttp"
	"github.com/cjoudrey/gluaurl"
	"github.com/yuin/gluamapper"
	"github.com/yuin/gluare"
	lua "github.com/yuin/gopher-lua"
	luajson "layeh.com/gopher-json"
	luar "layeh.com/gopher-luar"

	"github.com/icyseptember2237/scriptengine/internal/modpath"
)

const (
	TypeEngineLua = "lua"
)

// LuaEngine is the Lua backend. Modules are resolved through the same
// FileLoader as the JavaScript backend.
type LuaEngine struct {
	mu     sync.Mutex
	vm     *lua.LState
	opts   Options
	logger *log.Logger
	ready  bool
	closed bool
}

var _ Engine = (*LuaEngine)(nil)

func (e *LuaEngine) Init(opts Options) error {
	if !globalInitialized() {
		return ErrGlobalNotInitialized
	}

	e.opts = opts.withDefaults(TypeEngineLua)
	e.logger = e.opts.Logger
	e.vm = lua.NewState()
	luajson.Preload(e.vm)
	e.vm.PreloadModule("url", gluaurl.Loader)
	e.vm.PreloadModule("re", gluare.Loader)
	e.vm.PreloadModule("http", gluahttp.NewHttpModule(&http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		},
	}).Loader)
	e.vm.PreloadModule("xmlpath", gluaxmlpath.Loader)

	if err := e.installSearcher(); err != nil {
		return err
	}
	e.vm.SetGlobal("_environment", lua.LString(e.opts.Environment))
	e.vm.SetGlobal("_platform", lua.LString(e.opts.Platform))
	e.ready = false
	e.closed = false
	return nil
}

// installSearcher puts a FileLoader backed searcher right after the preload
// searcher, so require("a.b") finds a/b.lua or a/b/init.lua.
func (e *LuaEngine) installSearcher() error {
	pkg, ok := e.vm.GetGlobal("package").(*lua.LTable)
	if !ok {
		return errors.New("lua package library missing")
	}
	loaders, ok := e.vm.GetField(pkg, "loaders").(*lua.LTable)
	if !ok {
		return errors.New("lua package.loaders missing")
	}
	loaders.Insert(2, e.vm.NewFunction(e.searchFiles))
	return nil
}

func (e *LuaEngine) searchFiles(L *lua.LState) int {
	name := L.CheckString(1)
	base := modpath.Normalize(strings.ReplaceAll(name, ".", "/"))

	var tried []string
	for _, file := range []string{base + ".lua", base + "/init.lua"} {
		src, ok := e.opts.Files.LoadFile(file)
		if !ok {
			tried = append(tried, "\n\tno file '"+file+"'")
			continue
		}
		fn, err := L.Load(bytes.NewReader(src), file)
		if err != nil {
			L.RaiseError("%s", err.Error())
		}
		L.Push(fn)
		return 1
	}
	L.Push(lua.LString(strings.Join(tried, "")))
	return 1
}

func (e *LuaEngine) IsReady() bool {
	return e.ready
}

func (e *LuaEngine) SetReady() {
	e.ready = true
}

func (e *LuaEngine) ParseString(source string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}

	return e.scriptError(e.vm.DoString(source))
}

// ParseFile runs the file at path, read through the configured FileLoader.
func (e *LuaEngine) ParseFile(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}

	src, ok := e.opts.Files.LoadFile(path)
	if !ok {
		return &ModuleNotFoundError{ID: path}
	}
	fn, err := e.vm.Load(bytes.NewReader(src), path)
	if err != nil {
		return e.scriptError(err)
	}
	e.vm.Push(fn)
	return e.scriptError(e.vm.PCall(0, lua.MultRet, nil))
}

func (e *LuaEngine) toLuaValue(src interface{}) lua.LValue {
	if src == nil {
		return lua.LNil
	}
	if err, ok := src.(error); ok {
		return e.faultValue(err)
	}
	srcVal := reflect.ValueOf(src)
	switch srcVal.Kind() {
	case reflect.Map:
		dst := e.vm.NewTable()
		for _, key := range srcVal.MapKeys() {
			dst.RawSet(luar.New(e.vm, key.Interface()), e.toLuaValue(srcVal.MapIndex(key).Interface()))
		}
		return dst
	case reflect.Slice:
		dst := e.vm.NewTable()
		for i := 0; i < srcVal.Len(); i++ {
			dst.Append(e.toLuaValue(srcVal.Index(i).Interface()))
		}
		return dst
	default:
		return luar.New(e.vm, src)
	}
}

func (e *LuaEngine) toGoValue(src lua.LValue) interface{} {
	mapperOpt := gluamapper.Option{NameFunc: gluamapper.ToUpperCamelCase}
	switch v := src.(type) {
	case *lua.LTable:
		maxn := v.MaxN()
		if maxn == 0 {
			ret := make(map[string]interface{})
			v.ForEach(func(key, value lua.LValue) {
				keyStr := fmt.Sprint(e.toGoValue(key))
				if keyStr != "" && unicode.IsLower(rune(keyStr[0])) {
					ret[gluamapper.ToUpperCamelCase(keyStr)] = e.toGoValue(value)
				} else {
					ret[keyStr] = e.toGoValue(value)
				}
			})
			return ret
		}
		ret := make([]interface{}, 0, maxn)
		for i := 1; i <= maxn; i++ {
			ret = append(ret, e.toGoValue(v.RawGetInt(i)))
		}
		return ret
	case *lua.LUserData:
		return v.Value
	default:
		return gluamapper.ToGoValue(src, mapperOpt)
	}
}

// faultValue wraps a host error as userdata so it survives a trip through
// Lua error handling unchanged.
func (e *LuaEngine) faultValue(err error) *lua.LUserData {
	ud := e.vm.NewUserData()
	ud.Value = err
	mt := e.vm.NewTable()
	e.vm.SetField(mt, "__tostring", e.vm.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(err.Error()))
		return 1
	}))
	e.vm.SetMetatable(ud, mt)
	return ud
}

func (e *LuaEngine) RegisterObject(objectName string, objectPtr interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.vm.SetGlobal(objectName, e.toLuaValue(objectPtr))
}

func (e *LuaEngine) RegisterFunction(goFuncName string, goFuncPtr interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.vm.SetGlobal(goFuncName, e.vm.NewFunction(e.wrapHostFunc(goFuncName, goFuncPtr)))
}

func (e *LuaEngine) RegisterModule(moduleName string, moduleFuncPtr map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	exports := make(map[string]lua.LGFunction, len(moduleFuncPtr))
	for goFuncName, goFuncPtr := range moduleFuncPtr {
		exports[goFuncName] = e.wrapHostFunc(moduleName+"."+goFuncName, goFuncPtr)
	}

	e.vm.PreloadModule(moduleName, func(L *lua.LState) int {
		mod := L.SetFuncs(L.NewTable(), exports)
		L.SetField(mod, "name", lua.LString(moduleName))
		L.Push(mod)
		return 1
	})
}

// wrapHostFunc adapts a Go function. A non-nil trailing error result is
// raised as a Lua error that carries the original error value.
func (e *LuaEngine) wrapHostFunc(name string, fn interface{}) lua.LGFunction {
	fnVal := reflect.ValueOf(fn)
	if fnVal.Kind() != reflect.Func {
		panic("register invalid function: " + name)
	}
	fnType := fnVal.Type()
	numIn := fnType.NumIn()
	returnsErr := fnType.NumOut() > 0 && fnType.Out(fnType.NumOut()-1) == errorType

	return func(L *lua.LState) int {
		in := make([]reflect.Value, numIn)
		for i := 0; i < numIn; i++ {
			in[i] = luaArg(e.toGoValue(L.Get(i+1)), fnType.In(i))
		}

		out := fnVal.Call(in)
		if returnsErr {
			if errVal := out[len(out)-1]; !errVal.IsNil() {
				L.Error(e.faultValue(errVal.Interface().(error)), 1)
				return 0
			}
			out = out[:len(out)-1]
		}
		for _, ret := range out {
			L.Push(e.toLuaValue(ret.Interface()))
		}
		return len(out)
	}
}

func luaArg(v interface{}, typ reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(typ)
	}
	val := reflect.ValueOf(v)
	switch {
	case val.Type().AssignableTo(typ):
		return val
	case val.Type().ConvertibleTo(typ):
		return val.Convert(typ)
	}
	return reflect.Zero(typ)
}

func (e *LuaEngine) IsFunction(scriptFuncName string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.vm.GetGlobal(scriptFuncName).Type() == lua.LTFunction
}

func (e *LuaEngine) Call(scriptFuncName string, retNum int, args ...interface{}) ([]interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}

	fn := e.vm.GetGlobal(scriptFuncName)
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("%s: %w", scriptFuncName, ErrNotFunction)
	}

	luaArgs := make([]lua.LValue, len(args))
	for i := 0; i < len(args); i++ {
		luaArgs[i] = e.toLuaValue(args[i])
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    retNum,
		Protect: true,
	}, luaArgs...); err != nil {
		return nil, e.scriptError(err)
	}

	rets := make([]interface{}, retNum)
	for i := retNum - 1; i >= 0; i-- {
		rets[i] = e.toGoValue(e.vm.Get(-1))
		e.vm.Pop(1)
	}
	return rets, nil
}

func (e *LuaEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.vm == nil {
		return
	}

	e.vm.Close()
	e.closed = true
}

func (e *LuaEngine) GetVM() *lua.LState {
	return e.vm
}

var luaErrorNames = map[lua.ApiErrorType]string{
	lua.ApiErrorSyntax: "SyntaxError",
	lua.ApiErrorFile:   "FileError",
	lua.ApiErrorRun:    "RuntimeError",
	lua.ApiErrorError:  "Error",
	lua.ApiErrorPanic:  "Panic",
}

// scriptError converts a Lua failure into a *ScriptError. Host errors raised
// by registered functions come back as the error that was raised, or as the
// Cause when they are not script errors themselves.
func (e *LuaEngine) scriptError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *lua.ApiError
	if !errors.As(err, &apiErr) {
		return err
	}

	var cause error
	message := apiErr.Object.String()
	if ud, ok := apiErr.Object.(*lua.LUserData); ok {
		if fault, ok := ud.Value.(error); ok {
			if se, ok := fault.(*ScriptError); ok {
				return se
			}
			cause = fault
			message = "[HostError] " + fault.Error()
		}
	}
	if cause == nil {
		message = "[" + luaErrorNames[apiErr.Type] + "] " + message
	}

	frames := parseLuaTraceback(apiErr.StackTrace)
	if len(frames) == 0 {
		frames = []StackFrame{{TypeName: UnknownName, Name: UnknownName, Line: LineNative}}
	}
	return &ScriptError{
		Message: message,
		Value:   e.toGoValue(apiErr.Object),
		Cause:   cause,
		Frames:  frames,
	}
}

// parseLuaTraceback reads the "stack traceback:" block produced by the VM.
func parseLuaTraceback(trace string) []StackFrame {
	var frames []StackFrame
	for _, line := range strings.Split(trace, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "stack traceback:" {
			continue
		}
		where, what, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		f := StackFrame{TypeName: UnknownName, Name: AnonymousName, Line: LineNative}
		if what == "in main chunk" {
			f.Name = "main chunk"
		} else if _, fn, ok := strings.Cut(what, "in function "); ok {
			f.Name = strings.Trim(fn, "'<>")
		}
		if where != "[G]" {
			file, lineNo, _ := strings.Cut(where, ":")
			f.File = file
			f.Line = LineUnknown
			if n, err := strconv.Atoi(lineNo); err == nil && n > 0 {
				f.Line = n
			}
		}
		frames = append(frames, f)
	}
	return frames
}
