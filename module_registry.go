package engine

import (
	"fmt"
	"sort"

	"github.com/dop251/goja"
)

// NativeModuleFunc populates a native module. It runs synchronously on the
// first require of the module with the engine lock held; module.exports
// after it returns becomes the cached export. A non-nil error is raised in
// the requiring script as a HostError.
type NativeModuleFunc func(e *JsEngine, module *goja.Object) error

type nativeModuleKind uint8

const (
	builtinModule nativeModuleKind = iota + 1
	hostModule
)

func (k nativeModuleKind) String() string {
	switch k {
	case builtinModule:
		return "builtin"
	case hostModule:
		return "host"
	default:
		return fmt.Sprintf("nativeModuleKind(%d)", uint8(k))
	}
}

type nativeModule struct {
	kind nativeModuleKind
	name string
	load NativeModuleFunc
}

// moduleRegistry holds modules that bypass file resolution. Names are exact;
// they are never normalized.
type moduleRegistry struct {
	modules map[string]nativeModule
}

func newModuleRegistry() *moduleRegistry {
	return &moduleRegistry{modules: make(map[string]nativeModule)}
}

func (r *moduleRegistry) register(kind nativeModuleKind, name string, load NativeModuleFunc) (replaced bool) {
	_, replaced = r.modules[name]
	r.modules[name] = nativeModule{kind: kind, name: name, load: load}
	return replaced
}

func (r *moduleRegistry) lookup(name string) (nativeModule, bool) {
	m, ok := r.modules[name]
	return m, ok
}

func (r *moduleRegistry) names() []string {
	out := make([]string, 0, len(r.modules))
	for name := range r.modules {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
