package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnginePool_GetPutShutdown(t *testing.T) {
	logger, _ := testLogger()
	pool := InitEnginePool(TypeEngineJs, Options{Logger: logger})

	first, err := pool.Get()
	require.NoError(t, err)
	require.IsType(t, &JsEngine{}, first)
	require.NoError(t, first.ParseString(`function ping() { return 'pong'; }`))
	pool.Put(first)

	again, err := pool.Get()
	require.NoError(t, err)
	assert.Same(t, first, again)
	rets, err := again.Call("ping", 1)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"pong"}, rets)

	fresh, err := pool.Get()
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)

	pool.Put(again)
	pool.Put(fresh)
	pool.Shutdown()

	_, err = again.Call("ping", 1)
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestEnginePool_Backends(t *testing.T) {
	logger, _ := testLogger()
	for _, typ := range []string{TypeEngineJs, TypeEngineLua, TypeEngineGo} {
		t.Run(typ, func(t *testing.T) {
			e, err := InitEnginePool(typ, Options{Logger: logger}).New()
			require.NoError(t, err)
			defer e.Close()
			assert.False(t, e.IsReady())
		})
	}
}

func TestEnginePool_UnknownType(t *testing.T) {
	_, err := InitEnginePool("cobol", Options{}).Get()
	assert.ErrorContains(t, err, `unknown engine type "cobol"`)
}
