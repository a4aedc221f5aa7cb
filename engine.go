// Package engine embeds script runtimes in a Go host.
//
// The JavaScript backend implements a CommonJS style module loader with
// relative resolution and at-most-once evaluation, and a bidirectional
// exception bridge that carries Go errors into script space and script
// exceptions back out as *ScriptError values.
package engine

import (
	"runtime"

	"github.com/charmbracelet/log"

	"github.com/icyseptember2237/scriptengine/internal/config"
	"github.com/icyseptember2237/scriptengine/internal/output"
)

// Engine is the backend independent surface used by hosts and EnginePool.
type Engine interface {
	Init(opts Options) error

	IsReady() bool
	SetReady()

	ParseString(source string) error
	ParseFile(path string) error

	RegisterObject(objectName string, objectPtr interface{})
	RegisterFunction(goFuncName string, goFuncPtr interface{})
	RegisterModule(moduleName string, moduleFuncPtr map[string]interface{})

	IsFunction(scriptFuncName string) bool
	Call(scriptFuncName string, retNum int, args ...interface{}) ([]interface{}, error)

	Close()
}

// FileLoader retrieves module sources. A false result means the file does
// not exist; it is not an error.
type FileLoader interface {
	LoadFile(path string) ([]byte, bool)
}

// FileLoaderFunc adapts a function to FileLoader.
type FileLoaderFunc func(path string) ([]byte, bool)

// LoadFile calls f(path).
func (f FileLoaderFunc) LoadFile(path string) ([]byte, bool) {
	return f(path)
}

// Locale carries the values exposed as _locale, _lang, _tz and _deviceClass.
// Empty fields read as null.
type Locale struct {
	Locale      string
	Lang        string
	TZ          string
	DeviceClass string
}

// Options configures an engine instance.
type Options struct {
	// Files resolves module ids to sources. Required for ParseFile and require.
	Files FileLoader

	// Logger receives engine and console output.
	Logger *log.Logger

	// Environment, Platform, Debug and IsStoreBuild are copied onto every
	// module object.
	Environment  string
	Platform     string
	Debug        bool
	IsStoreBuild bool

	Locale Locale

	// OnHostFaultReleased, if set, is called with the original error each
	// time a host fault wrapped into a script error is released. It runs on
	// the releasing goroutine without the engine lock.
	OnHostFaultReleased func(fault error)
}

// OptionsFromConfig builds Options from host configuration.
func OptionsFromConfig(cfg *config.Config, files FileLoader) Options {
	return Options{
		Files:        files,
		Environment:  cfg.Environment,
		Platform:     cfg.Platform,
		Debug:        cfg.Debug,
		IsStoreBuild: cfg.IsStoreBuild,
		Locale: Locale{
			Locale:      cfg.Locale.Locale,
			Lang:        cfg.Locale.Lang,
			TZ:          cfg.Locale.TZ,
			DeviceClass: cfg.Locale.DeviceClass,
		},
	}
}

func (o Options) withDefaults(name string) Options {
	if o.Files == nil {
		o.Files = FileLoaderFunc(func(string) ([]byte, bool) { return nil, false })
	}
	if o.Logger == nil {
		o.Logger = output.EngineLogger(name)
	}
	if o.Environment == "" {
		o.Environment = config.DefaultEnvironment
	}
	if o.Platform == "" {
		o.Platform = runtime.GOOS
	}
	return o
}
