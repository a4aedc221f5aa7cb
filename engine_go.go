package engine

import (
	"errors"
	"fmt"
	"go/scanner"
	"path"
	"reflect"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

const (
	TypeEngineGo = "go"

	// goHostPackage is the import path under which registered objects and
	// functions are visible to scripts.
	goHostPackage = "gos/gos"
)

// GoEngine interprets Go source with yaegi.
type GoEngine struct {
	mu      sync.Mutex
	i       *interp.Interpreter
	opts    Options
	logger  *log.Logger
	symbols map[string]reflect.Value
	fn      map[string]reflect.Value
	ready   bool
}

var _ Engine = (*GoEngine)(nil)

func (e *GoEngine) Init(opts Options) error {
	if !globalInitialized() {
		return ErrGlobalNotInitialized
	}

	e.opts = opts.withDefaults(TypeEngineGo)
	e.logger = e.opts.Logger
	e.i = interp.New(interp.Options{})
	e.symbols = make(map[string]reflect.Value)
	e.fn = make(map[string]reflect.Value)
	if err := e.i.Use(stdlib.Symbols); err != nil {
		return fmt.Errorf("loading stdlib symbols: %w", err)
	}
	e.ready = false
	return nil
}

func (e *GoEngine) IsReady() bool {
	return e.ready
}

// SetReady publishes registered objects and functions as package gos.
func (e *GoEngine) SetReady() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.i.Use(interp.Exports{goHostPackage: e.symbols}); err != nil {
		e.logger.Error("publishing host symbols", "error", err)
		return
	}
	e.ready = true
}

func (e *GoEngine) ParseString(source string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.eval("<eval>", source)
}

// ParseFile evaluates the file at path, read through the configured
// FileLoader.
func (e *GoEngine) ParseFile(filePath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	src, ok := e.opts.Files.LoadFile(filePath)
	if !ok {
		return &ModuleNotFoundError{ID: filePath}
	}
	return e.eval(filePath, string(src))
}

func (e *GoEngine) eval(name, source string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = goScriptError(name, fmt.Errorf("%v", r))
		}
	}()
	if _, err := e.i.Eval(source); err != nil {
		return goScriptError(name, err)
	}
	return nil
}

func (e *GoEngine) RegisterObject(objectName string, objectPtr interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.symbols[objectName] = reflect.ValueOf(objectPtr)
}

func (e *GoEngine) RegisterFunction(goFuncName string, goFuncPtr interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.symbols[goFuncName] = reflect.ValueOf(goFuncPtr)
}

// RegisterModule makes the functions importable as moduleName.
func (e *GoEngine) RegisterModule(moduleName string, moduleFuncPtr map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	modFuncSymbols := make(map[string]reflect.Value, len(moduleFuncPtr))
	for k, v := range moduleFuncPtr {
		modFuncSymbols[k] = reflect.ValueOf(v)
	}
	key := moduleName + "/" + path.Base(moduleName)
	if err := e.i.Use(interp.Exports{key: modFuncSymbols}); err != nil {
		e.logger.Error("registering module", "module", moduleName, "error", err)
	}
}

func (e *GoEngine) lookup(scriptFuncName string) (reflect.Value, error) {
	if f, ok := e.fn[scriptFuncName]; ok {
		return f, nil
	}
	f, err := e.i.Eval(scriptFuncName)
	if err != nil {
		return reflect.Value{}, err
	}
	if f.Kind() != reflect.Func {
		return reflect.Value{}, fmt.Errorf("%s: %w", scriptFuncName, ErrNotFunction)
	}
	e.fn[scriptFuncName] = f
	return f, nil
}

func (e *GoEngine) IsFunction(scriptFuncName string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, err := e.lookup(scriptFuncName)
	return err == nil
}

func (e *GoEngine) Call(scriptFuncName string, retNum int, args ...interface{}) (results []interface{}, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	f, err := e.lookup(scriptFuncName)
	if err != nil {
		if errors.Is(err, ErrNotFunction) {
			return nil, err
		}
		return nil, goScriptError(scriptFuncName, err)
	}

	defer func() {
		if r := recover(); r != nil {
			results, err = nil, goScriptError(scriptFuncName, fmt.Errorf("%v", r))
		}
	}()

	params := make([]reflect.Value, len(args))
	for i, arg := range args {
		params[i] = reflect.ValueOf(arg)
	}
	rets := f.Call(params)

	results = make([]interface{}, 0, len(rets))
	for _, ret := range rets {
		results = append(results, ret.Interface())
	}
	return results, nil
}

func (e *GoEngine) Close() {
}

// goScriptError wraps an interpreter failure with a single synthetic frame
// pointing at the evaluated source.
func goScriptError(name string, err error) *ScriptError {
	frame := StackFrame{TypeName: UnknownName, Name: UnknownName, File: name, Line: LineUnknown}
	var list scanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 && list[0].Pos.Line > 0 {
		frame.Line = list[0].Pos.Line
	}
	return &ScriptError{
		Message: "[GoError] " + err.Error(),
		Value:   err.Error(),
		Cause:   err,
		Frames:  []StackFrame{frame},
	}
}
