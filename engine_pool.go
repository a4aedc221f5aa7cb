package engine

import (
	"fmt"
	"sync"
)

// EnginePool recycles initialized engines of one backend.
type EnginePool struct {
	engineType string
	opts       Options
	m          sync.Mutex
	saved      []Engine
}

// Get returns a pooled engine or a freshly initialized one.
func (ep *EnginePool) Get() (Engine, error) {
	ep.m.Lock()
	n := len(ep.saved)
	if n > 0 {
		x := ep.saved[n-1]
		ep.saved = ep.saved[0 : n-1]
		ep.m.Unlock()
		return x, nil
	}
	ep.m.Unlock()
	return ep.New()
}

func (ep *EnginePool) Put(e Engine) {
	ep.m.Lock()
	defer ep.m.Unlock()
	ep.saved = append(ep.saved, e)
}

// Shutdown closes every pooled engine.
func (ep *EnginePool) Shutdown() {
	ep.m.Lock()
	saved := ep.saved
	ep.saved = nil
	ep.m.Unlock()

	for _, e := range saved {
		e.Close()
	}
}

// New initializes an engine of the pool's type without pooling it.
func (ep *EnginePool) New() (Engine, error) {
	engine, err := newEngine(ep.engineType)
	if err != nil {
		return nil, err
	}
	if err := engine.Init(ep.opts); err != nil {
		return nil, fmt.Errorf("initializing %s engine: %w", ep.engineType, err)
	}
	return engine, nil
}

func newEngine(engineType string) (Engine, error) {
	switch engineType {
	case TypeEngineLua:
		return &LuaEngine{}, nil
	case TypeEngineJs:
		return &JsEngine{}, nil
	case TypeEngineGo:
		return &GoEngine{}, nil
	}
	return nil, fmt.Errorf("unknown engine type %q", engineType)
}

func InitEnginePool(engineType string, opts Options) *EnginePool {
	return &EnginePool{
		engineType: engineType,
		opts:       opts,
		saved:      make([]Engine, 0, 4),
	}
}
