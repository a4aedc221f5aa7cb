package engine

import (
	"runtime/debug"
	"sync"

	"github.com/icyseptember2237/scriptengine/internal/output"
)

// GlobalConfig holds process wide runtime settings.
type GlobalConfig struct {
	// MaxHeapMB sets the soft memory limit. Zero keeps the runtime default.
	MaxHeapMB int64

	// GCPercent sets the collector target when non-zero.
	GCPercent int
}

var global struct {
	mu          sync.Mutex
	initialized bool
	cfg         GlobalConfig
}

// InitializeGlobal performs the one-time process bring-up every engine
// depends on. It must be called once, before the first engine is
// initialized, by the process level owner of the engines. It is not
// reentrant: a second call returns ErrGlobalAlreadyInitialized and changes
// nothing.
func InitializeGlobal(cfg GlobalConfig) error {
	global.mu.Lock()
	defer global.mu.Unlock()

	if global.initialized {
		return ErrGlobalAlreadyInitialized
	}

	if cfg.MaxHeapMB > 0 {
		debug.SetMemoryLimit(cfg.MaxHeapMB << 20)
	}
	if cfg.GCPercent != 0 {
		debug.SetGCPercent(cfg.GCPercent)
	}

	global.cfg = cfg
	global.initialized = true
	output.Debug("initialized script runtime", "maxHeapMB", cfg.MaxHeapMB, "gcPercent", cfg.GCPercent)
	return nil
}

func globalInitialized() bool {
	global.mu.Lock()
	defer global.mu.Unlock()
	return global.initialized
}
