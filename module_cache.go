package engine

import "github.com/dop251/goja"

// moduleCache maps canonical module keys to exported values. It is owned by
// one JsEngine and only touched while the engine lock is held.
type moduleCache struct {
	entries map[string]goja.Value
}

func newModuleCache() *moduleCache {
	return &moduleCache{entries: make(map[string]goja.Value)}
}

func (c *moduleCache) Get(key string) (goja.Value, bool) {
	v, ok := c.entries[key]
	return v, ok
}

func (c *moduleCache) Put(key string, v goja.Value) {
	c.entries[key] = v
}

// Delete drops key and reports whether it was cached.
func (c *moduleCache) Delete(key string) bool {
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

func (c *moduleCache) Len() int {
	return len(c.entries)
}
