package engine

import (
	"fmt"

	"github.com/dop251/goja"
)

const (
	bindingHostError = `(function () {
	function HostError(message) {
		if (!(this instanceof HostError)) {
			return new HostError(message);
		}
		var err = new Error(message || 'An exception was thrown in the host');
		Object.setPrototypeOf(err, HostError.prototype);
		return err;
	}
	HostError.prototype = Object.create(Error.prototype, {
		constructor: { value: HostError, writable: true, configurable: true },
		name: { value: 'HostError', writable: true, configurable: true }
	});
	return HostError;
})()`

	bindingParseJSON = `(function parseJSON(source) {
	return JSON.parse(source);
})`

	bindingStringifyJSON = `(function stringifyJSON(value, space) {
	return JSON.stringify(value, null, space);
})`
)

// installBindings compiles the fixed helper functions the engine calls from
// Go.
func (e *JsEngine) installBindings() error {
	hostError, err := e.run("binding:makeHostError", bindingHostError)
	if err != nil {
		return err
	}
	e.hostErrorType = hostError.ToObject(e.vm)

	if e.parseJSONFn, err = e.bindingFunc("binding:parseJSON", bindingParseJSON); err != nil {
		return err
	}
	if e.stringifyFn, err = e.bindingFunc("binding:stringifyJSON", bindingStringifyJSON); err != nil {
		return err
	}
	return nil
}

func (e *JsEngine) bindingFunc(name, source string) (goja.Callable, error) {
	v, err := e.run(name, source)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFunction)
	}
	return fn, nil
}

func (e *JsEngine) parseJSON(text string) (goja.Value, error) {
	return e.parseJSONFn(goja.Undefined(), e.vm.ToValue(text))
}

func (e *JsEngine) stringifyJSON(v goja.Value, pretty bool) (string, error) {
	space := goja.Undefined()
	if pretty {
		space = e.vm.ToValue(4)
	}
	out, err := e.stringifyFn(goja.Undefined(), v, space)
	if err != nil {
		return "", err
	}
	if goja.IsUndefined(out) {
		return "", nil
	}
	return out.String(), nil
}

// toDebugString renders v for log output. Objects are pretty printed as
// JSON when possible.
func (e *JsEngine) toDebugString(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	if obj, ok := v.(*goja.Object); ok {
		if _, isFunc := goja.AssertFunction(obj); !isFunc && obj.ClassName() != "Error" {
			if s, err := e.stringifyJSON(obj, true); err == nil && s != "" {
				return s
			}
		}
	}
	return e.stringOf(v)
}

// installGlobals sets up the globals every script can rely on.
func (e *JsEngine) installGlobals() error {
	global := e.vm.GlobalObject()

	if err := global.Set("global", global); err != nil {
		return err
	}
	if err := global.Set("HostError", e.hostErrorType); err != nil {
		return err
	}
	if err := global.Set("require", e.makeRequire("")); err != nil {
		return err
	}
	if err := global.Set("console", e.newConsole()); err != nil {
		return err
	}
	if err := e.installTimers(global); err != nil {
		return err
	}

	locale := e.opts.Locale
	for name, value := range map[string]string{
		"_locale":      locale.Locale,
		"_lang":        locale.Lang,
		"_tz":          locale.TZ,
		"_deviceClass": locale.DeviceClass,
	} {
		v := goja.Null()
		if value != "" {
			v = e.vm.ToValue(value)
		}
		if err := global.DefineDataProperty(name, v, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
			return err
		}
	}
	return nil
}

// registerBuiltins adds the modules that ship with every engine. Host
// modules of the same name replace them.
func (e *JsEngine) registerBuiltins() {
	e.registry.register(builtinModule, "console", func(e *JsEngine, module *goja.Object) error {
		return module.Set("exports", e.vm.Get("console"))
	})
	e.registry.register(builtinModule, "timers", func(e *JsEngine, module *goja.Object) error {
		exports := module.Get("exports").ToObject(e.vm)
		for _, name := range timerFuncs {
			if err := exports.Set(name, e.vm.Get(name)); err != nil {
				return err
			}
		}
		return nil
	})
	e.registry.register(builtinModule, "yaml", loadYAMLModule)
}
