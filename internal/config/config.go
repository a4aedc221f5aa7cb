// Package config provides configuration loading for the script engine host.
package config

// Engine backends understood by the host.
const (
	EngineJS  = "js"
	EngineLua = "lua"
	EngineGo  = "go"
)

// DefaultEnvironment is the tag exposed to scripts as module.environment.
const DefaultEnvironment = "ScriptEngine"

// LogConfig contains logging-related settings.
type LogConfig struct {
	// Verbose enables debug logging.
	// Env: SCRIPTENGINE_LOG_VERBOSE
	Verbose bool `mapstructure:"verbose"`

	// Timestamps controls whether timestamps are shown in log output.
	// Default: true.
	Timestamps *bool `mapstructure:"timestamps"`
}

// LocaleConfig holds the values exposed as _locale, _lang, _tz and
// _deviceClass globals.
type LocaleConfig struct {
	Locale      string `mapstructure:"locale"`
	Lang        string `mapstructure:"lang"`
	TZ          string `mapstructure:"tz"`
	DeviceClass string `mapstructure:"deviceClass"`
}

// Config represents the host configuration.
type Config struct {
	// Engine selects the backend: js, lua or go.
	// Env: SCRIPTENGINE_ENGINE, Default: js
	Engine string `mapstructure:"engine"`

	// AssetRoot is the directory module ids are resolved against.
	// Env: SCRIPTENGINE_ASSET_ROOT, Default: "."
	AssetRoot string `mapstructure:"assetRoot"`

	// Environment is exposed to scripts as module.environment.
	Environment string `mapstructure:"environment"`

	// Platform is exposed to scripts as module.platform. Default: GOOS.
	Platform string `mapstructure:"platform"`

	// Debug is exposed to scripts as module.debug.
	// Env: SCRIPTENGINE_DEBUG
	Debug bool `mapstructure:"debug"`

	// IsStoreBuild is exposed to scripts as module.isStoreBuild.
	IsStoreBuild bool `mapstructure:"isStoreBuild"`

	// MaxHeapMB is the soft memory limit applied at global initialization.
	// Zero leaves the runtime default.
	// Env: SCRIPTENGINE_MAX_HEAP_MB
	MaxHeapMB int64 `mapstructure:"maxHeapMB"`

	// GCPercent overrides the collector target percentage when non-zero.
	GCPercent int `mapstructure:"gcPercent"`

	Locale LocaleConfig `mapstructure:"locale"`

	Log LogConfig `mapstructure:"log"`
}

// WithDefaults returns a copy of c with unset fields populated.
func (c *Config) WithDefaults() *Config {
	out := *c
	if out.Engine == "" {
		out.Engine = EngineJS
	}
	if out.AssetRoot == "" {
		out.AssetRoot = "."
	}
	if out.Environment == "" {
		out.Environment = DefaultEnvironment
	}
	return &out
}
