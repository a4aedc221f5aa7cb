package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"

	"github.com/icyseptember2237/scriptengine/internal/modpath"
)

const (
	shellPrefix = "(function (exports, require, module, __filename, __dirname) {"
	shellSuffix = "\n})"
)

// moduleRecord describes one resolved module while it is being loaded.
type moduleRecord struct {
	requestedID string
	fileName    string
	dirName     string
	isJSON      bool
}

type candidate struct {
	file   string
	isJSON bool
	alias  bool
}

// require resolves and loads id. Lookup order: cache, native modules, the
// exact file, package.json main, index.js, .js and .json suffixes. Every
// candidate is checked against the cache before it is read.
func (e *JsEngine) require(id string) (goja.Value, error) {
	id = modpath.Rewrite(id)

	if v, ok := e.cache.Get(id); ok {
		return v, nil
	}
	if m, ok := e.loading[id]; ok {
		return m.Get("exports"), nil
	}
	if m, ok := e.registry.lookup(id); ok {
		return e.loadNative(m)
	}

	if src, ok := e.opts.Files.LoadFile(id); ok {
		return e.loadRecord(moduleRecord{
			requestedID: id,
			fileName:    id,
			isJSON:      strings.HasSuffix(id, ".json"),
		}, src)
	}

	if v, found, err := e.requirePackage(id); found || err != nil {
		return v, err
	}

	return e.loadCandidates(id, []candidate{
		{file: id + "/index.js", alias: true},
		{file: id + ".js", alias: true},
		{file: id + ".json", isJSON: true},
	})
}

func (e *JsEngine) loadCandidates(id string, candidates []candidate) (goja.Value, error) {
	for _, c := range candidates {
		if v, ok := e.cache.Get(c.file); ok {
			if c.alias {
				e.cache.Put(id, v)
			}
			return v, nil
		}
		if src, ok := e.opts.Files.LoadFile(c.file); ok {
			return e.loadRecord(moduleRecord{requestedID: id, fileName: c.file, isJSON: c.isJSON}, src)
		}
	}
	return nil, &ModuleNotFoundError{ID: id}
}

// requirePackage resolves id through id/package.json. found reports whether
// the package file decided the outcome; a package without main falls
// through to the remaining candidates.
func (e *JsEngine) requirePackage(id string) (v goja.Value, found bool, err error) {
	pkgFile := id + "/package.json"
	src, ok := e.opts.Files.LoadFile(pkgFile)
	if !ok {
		return nil, false, nil
	}

	pkg, err := e.parseJSON(string(src))
	if err != nil {
		return nil, true, &LoadError{Kind: KindJSONParse, ID: id, File: pkgFile, Err: err}
	}
	var main string
	if obj, ok := pkg.(*goja.Object); ok {
		if m := obj.Get("main"); m != nil && !goja.IsUndefined(m) && !goja.IsNull(m) {
			main = m.String()
		}
	}
	if main == "" {
		e.logger.Warn("package.json has no main", "module", id)
		return nil, false, nil
	}

	mainFile := modpath.Normalize(id + "/" + main)
	v, err = e.loadCandidates(id, []candidate{
		{file: mainFile, isJSON: strings.HasSuffix(mainFile, ".json"), alias: true},
		{file: mainFile + ".js", alias: true},
		{file: mainFile + "/index.js", alias: true},
	})
	return v, true, err
}

func (e *JsEngine) loadRecord(rec moduleRecord, src []byte) (goja.Value, error) {
	if !rec.isJSON {
		return e.evaluate(rec, src)
	}

	v, err := e.parseJSON(string(src))
	if err != nil {
		return nil, &LoadError{Kind: KindJSONParse, ID: rec.requestedID, File: rec.fileName, Err: err}
	}
	e.cache.Put(rec.fileName, v)
	return v, nil
}

// evaluate runs a module body inside the CommonJS shell and caches its
// exports under the file name and the requested id. A module required again
// while it is still evaluating yields its current exports.
func (e *JsEngine) evaluate(rec moduleRecord, src []byte) (goja.Value, error) {
	if m, ok := e.loading[rec.fileName]; ok {
		return m.Get("exports"), nil
	}
	rec.dirName = modpath.Dir(rec.fileName)

	shell, err := e.compileShell(rec.fileName, src)
	if err != nil {
		return nil, &LoadError{Kind: KindEvaluation, ID: rec.requestedID, File: rec.fileName, Err: err}
	}

	exports := e.vm.NewObject()
	module := e.newModuleObject(rec.fileName, exports)
	e.loading[rec.fileName] = module
	defer delete(e.loading, rec.fileName)

	_, err = shell(e.vm.GlobalObject(),
		exports,
		e.makeRequire(rec.dirName),
		module,
		e.vm.ToValue(rec.fileName),
		e.vm.ToValue(rec.dirName),
	)
	if err != nil {
		return nil, &LoadError{Kind: KindEvaluation, ID: rec.requestedID, File: rec.fileName, Err: err}
	}

	result := module.Get("exports")
	e.cache.Put(rec.fileName, result)
	if rec.requestedID != rec.fileName {
		e.cache.Put(rec.requestedID, result)
	}
	e.logger.Debug("module loaded", "id", rec.requestedID, "file", rec.fileName)
	return result, nil
}

func (e *JsEngine) loadNative(m nativeModule) (goja.Value, error) {
	exports := e.vm.NewObject()
	module := e.newModuleObject(m.name, exports)

	var err error
	if ex := e.vm.Try(func() { err = m.load(e, module) }); ex != nil {
		err = ex
	}
	if err != nil {
		return nil, &LoadError{Kind: KindNativeModule, ID: m.name, Err: err}
	}

	result := module.Get("exports")
	e.cache.Put(m.name, result)
	e.logger.Debug("native module loaded", "module", m.name, "kind", m.kind)
	return result, nil
}

func (e *JsEngine) newModuleObject(id string, exports *goja.Object) *goja.Object {
	module := e.vm.NewObject()
	_ = module.Set("id", id)
	_ = module.Set("exports", exports)
	_ = module.Set("environment", e.opts.Environment)
	_ = module.Set("platform", e.opts.Platform)
	_ = module.Set("debug", e.opts.Debug)
	_ = module.Set("isStoreBuild", e.opts.IsStoreBuild)
	return module
}

// makeRequire returns the require function handed to modules in dir. A
// non-string argument yields undefined.
func (e *JsEngine) makeRequire(dir string) goja.Value {
	return e.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		id, ok := arg.Export().(string)
		if !ok {
			return goja.Undefined()
		}
		v, err := e.require(modpath.JoinWithDirectory(dir, id))
		if err != nil {
			e.throw(err)
		}
		return v
	})
}

// throw raises err in script space. Script exceptions are rethrown as they
// are, missing modules become an Error with code MODULE_NOT_FOUND and other
// errors are wrapped as host faults.
func (e *JsEngine) throw(err error) {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		panic(ex)
	}
	var notFound *ModuleNotFoundError
	if errors.As(err, &notFound) {
		panic(e.newCodedError(notFound.Error(), "MODULE_NOT_FOUND"))
	}
	e.throwHostFault(err)
}

func (e *JsEngine) newCodedError(message, code string) *goja.Object {
	obj, err := e.vm.New(e.vm.Get("Error"), e.vm.ToValue(message))
	if err != nil {
		obj = e.vm.NewObject()
		_ = obj.Set("message", message)
	}
	_ = obj.Set("code", code)
	return obj
}

func (e *JsEngine) compileShell(fileName string, src []byte) (goja.Callable, error) {
	v, err := e.run(fileName, shellPrefix+string(src)+shellSuffix)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("%s: module shell is not a function", fileName)
	}
	return fn, nil
}

// compile parses source separately from compilation so that syntax errors
// keep a structured location.
func (e *JsEngine) compile(name, source string) (*goja.Program, error) {
	ast, err := parser.ParseFile(nil, name, source, 0)
	if err != nil {
		return nil, e.syntaxException(name, err)
	}
	prg, err := goja.CompileAST(ast, false)
	if err != nil {
		return nil, e.syntaxException(name, err)
	}
	return prg, nil
}

func (e *JsEngine) syntaxException(name string, err error) error {
	diag := diagnostic{Resource: name}
	message := err.Error()
	ctorName := "SyntaxError"

	var (
		list      parser.ErrorList
		single    *parser.Error
		syntax    *goja.CompilerSyntaxError
		reference *goja.CompilerReferenceError
	)
	switch {
	case errors.As(err, &list) && len(list) > 0:
		message = list[0].Message
		diag.Line = list[0].Position.Line
	case errors.As(err, &single):
		message = single.Message
		diag.Line = single.Position.Line
	case errors.As(err, &syntax):
		message = syntax.Message
		if syntax.File != nil {
			diag.Line = syntax.File.Position(syntax.Offset).Line
		}
	case errors.As(err, &reference):
		message = reference.Message
		ctorName = "ReferenceError"
		if reference.File != nil {
			diag.Line = reference.File.Position(reference.Offset).Line
		}
	}

	obj, newErr := e.vm.New(e.vm.Get(ctorName), e.vm.ToValue(message))
	if newErr != nil {
		return err
	}
	_ = obj.DefineDataPropertySymbol(e.diagnosticKey, e.vm.ToValue(&diag), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
	if ex := e.vm.Try(func() { panic(obj) }); ex != nil {
		return ex
	}
	return err
}
