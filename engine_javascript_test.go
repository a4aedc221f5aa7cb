package engine

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJsEngine_CallAndIsFunction(t *testing.T) {
	e, _ := newTestJsEngine(t, nil)
	require.NoError(t, e.ParseString(`
function add(a, b) { return a + b; }
function pair() { return ['left', 'right']; }
var notAFunction = 1;
`))

	assert.True(t, e.IsFunction("add"))
	assert.False(t, e.IsFunction("notAFunction"))
	assert.False(t, e.IsFunction("missing"))

	rets, err := e.Call("add", 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(5)}, rets)

	rets, err = e.Call("pair", 2)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"left", "right"}, rets)

	rets, err = e.Call("add", 0, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, rets)

	_, err = e.Call("notAFunction", 1)
	assert.ErrorIs(t, err, ErrNotFunction)
}

func TestJsEngine_ParseFile(t *testing.T) {
	e, _ := newTestJsEngine(t, map[string]string{
		"scripts/init.js": `var initialized = true;`,
	})

	require.NoError(t, e.ParseFile("scripts/init.js"))
	v, err := e.RunString(context.Background(), "check", "initialized")
	require.NoError(t, err)
	assert.True(t, v.ToBoolean())

	err = e.ParseFile("scripts/missing.js")
	assert.ErrorIs(t, err, ErrModuleNotFound)
}

func TestJsEngine_RegisterFunctionConvertsArguments(t *testing.T) {
	e, _ := newTestJsEngine(t, nil)
	e.RegisterFunction("describe", func(name string, count int, tags ...string) string {
		return name + ":" + strings.Repeat("x", count) + ":" + strings.Join(tags, ",")
	})
	e.RegisterFunction("split", func(s string) (string, string) {
		head, tail, _ := strings.Cut(s, "/")
		return head, tail
	})

	v, err := e.RunString(context.Background(), "check", `describe('n', 3, 'a', 'b') + ' ' + split('x/y').join('+')`)
	require.NoError(t, err)
	assert.Equal(t, "n:xxx:a,b x+y", v.String())
}

func TestJsEngine_RegisterFunctionWithContextReenters(t *testing.T) {
	e, _ := newTestJsEngine(t, map[string]string{
		"dep.js": `module.exports = 'dep';`,
	})
	e.RegisterFunction("loadFromHost", func(ctx context.Context, id string) (string, error) {
		v, err := e.RequireContext(ctx, id)
		if err != nil {
			return "", err
		}
		return v.String(), nil
	})

	done := make(chan goja.Value, 1)
	go func() {
		v, _ := e.RunString(context.Background(), "check", `loadFromHost('dep')`)
		done <- v
	}()

	select {
	case v := <-done:
		require.NotNil(t, v)
		assert.Equal(t, "dep", v.String())
	case <-time.After(5 * time.Second):
		t.Fatal("re-entrant require deadlocked")
	}
}

func TestJsEngine_StaleContextWaitsForLock(t *testing.T) {
	e, _ := newTestJsEngine(t, nil)

	var kept context.Context
	e.RegisterFunction("keep", func(ctx context.Context) { kept = ctx })
	entered := make(chan struct{})
	release := make(chan struct{})
	e.RegisterFunction("hold", func() {
		close(entered)
		<-release
	})
	var loaded atomic.Bool
	e.RegisterNativeModule("guarded", func(*JsEngine, *goja.Object) error {
		loaded.Store(true)
		return nil
	})

	require.NoError(t, e.ParseString(`keep()`))
	require.NotNil(t, kept)

	held := make(chan error, 1)
	go func() { held <- e.ParseString(`hold()`) }()
	<-entered

	required := make(chan error, 1)
	go func() {
		_, err := e.RequireContext(kept, "guarded")
		required <- err
	}()

	assert.Never(t, loaded.Load, 100*time.Millisecond, 10*time.Millisecond)
	close(release)
	require.NoError(t, <-held)
	require.NoError(t, <-required)
	assert.True(t, loaded.Load())
}

func TestJsEngine_RegisterObjectAndModule(t *testing.T) {
	e, _ := newTestJsEngine(t, nil)
	e.RegisterObject("settings", map[string]interface{}{"mode": "fast"})
	e.RegisterModule("math2", map[string]interface{}{
		"double": func(n int) int { return n * 2 },
	})

	v, err := e.RunString(context.Background(), "check", `settings.mode + ' ' + require('math2').double(21)`)
	require.NoError(t, err)
	assert.Equal(t, "fast 42", v.String())
}

func TestJsEngine_JSON(t *testing.T) {
	e, _ := newTestJsEngine(t, nil)
	ctx := context.Background()

	v, err := e.ParseJSON(ctx, `{"a": [1, 2]}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": []interface{}{int64(1), int64(2)}}, v.Export())

	compact, err := e.StringifyJSON(ctx, map[string]interface{}{"a": 1}, false)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, compact)

	pretty, err := e.StringifyJSON(ctx, map[string]interface{}{"a": 1}, true)
	require.NoError(t, err)
	assert.Equal(t, "{\n    \"a\": 1\n}", pretty)

	_, err = e.ParseJSON(ctx, `{broken`)
	var se *ScriptError
	require.True(t, errors.As(err, &se))
	assert.True(t, strings.HasPrefix(se.Message, "[SyntaxError]"))
}

func TestJsEngine_Globals(t *testing.T) {
	logger, _ := testLogger()
	e, err := NewJsEngine(Options{
		Logger: logger,
		Locale: Locale{Locale: "de_DE", Lang: "de", TZ: "Europe/Berlin"},
	})
	require.NoError(t, err)
	defer e.Close()

	v, err := e.RunString(context.Background(), "check", `[global === this, _locale, _lang, _tz, _deviceClass === null, typeof process.nextTick].join(',')`)
	require.NoError(t, err)
	assert.Equal(t, "true,de_DE,de,Europe/Berlin,true,function", v.String())
}

func TestJsEngine_Console(t *testing.T) {
	e, logs := newTestJsEngine(t, nil)

	require.NoError(t, e.ParseString(`
console.log('hello', {a: 1});
console.warn('careful');
console.assert(1 === 2, 'math is broken');
function outer() { console.trace('here'); }
outer();
`))

	out := logs.String()
	assert.Contains(t, out, "hello {")
	assert.Contains(t, out, `"a": 1`)
	assert.Contains(t, out, "careful")
	assert.Contains(t, out, "Assertion failed: math is broken")
	assert.Contains(t, out, "Trace: here")
	assert.Contains(t, out, "<unknown>.outer(<eval>:5)")
}

func TestJsEngine_Timers(t *testing.T) {
	e, _ := newTestJsEngine(t, nil)

	require.NoError(t, e.ParseString(`
var fired = [];
setTimeout(function (tag) { fired.push(tag); }, 1, 'timeout');
var cancelled = setTimeout(function () { fired.push('cancelled'); }, 1);
clearTimeout(cancelled);
var ticks = 0;
var interval = setInterval(function () { if (++ticks === 3) { clearInterval(interval); } }, 1);
process.nextTick(function () { fired.push('tick'); });
setImmediate(function (tag) { fired.push(tag); }, 'immediate');
var frame = -1;
requestAnimationFrame(function (ts) { frame = ts; });
var skipped = requestAnimationFrame(function () { fired.push('frame'); });
cancelAnimationFrame(skipped);
`))

	assert.Eventually(t, func() bool {
		v, err := e.RunString(context.Background(), "poll", `ticks === 3 && fired.length === 3 && frame >= 0`)
		return err == nil && v.ToBoolean()
	}, 5*time.Second, 10*time.Millisecond)

	v, err := e.RunString(context.Background(), "check", `fired.sort().join(',')`)
	require.NoError(t, err)
	assert.Equal(t, "immediate,tick,timeout", v.String())
}

func TestJsEngine_TimerFailureIsLogged(t *testing.T) {
	e, logs := newTestJsEngine(t, nil)
	require.NoError(t, e.ParseString(`setTimeout(function () { throw new Error('late failure'); }, 1);`))

	assert.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return strings.Contains(logs.String(), "late failure")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestJsEngine_ClosedEngine(t *testing.T) {
	e, _ := newTestJsEngine(t, nil)
	var fired atomic.Bool
	e.RegisterFunction("mark", func() { fired.Store(true) })
	require.NoError(t, e.ParseString(`setTimeout(mark, 20);`))

	e.Close()
	assert.Never(t, fired.Load, 150*time.Millisecond, 10*time.Millisecond)

	_, err := e.Require("anything")
	assert.ErrorIs(t, err, ErrEngineClosed)
	_, err = e.Call("anything", 1)
	assert.ErrorIs(t, err, ErrEngineClosed)
	assert.False(t, e.IsFunction("setTimeout"))
}

func TestJsEngine_ReadyFlag(t *testing.T) {
	e, _ := newTestJsEngine(t, nil)
	assert.False(t, e.IsReady())
	e.SetReady()
	assert.True(t, e.IsReady())
}
