package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLuaEngine(t *testing.T, files map[string]string) *LuaEngine {
	t.Helper()
	logger, _ := testLogger()
	e := &LuaEngine{}
	require.NoError(t, e.Init(Options{Files: memFiles(t, files), Logger: logger}))
	t.Cleanup(e.Close)
	return e
}

func TestLuaEngine_CallAndRegister(t *testing.T) {
	e := newTestLuaEngine(t, nil)
	e.RegisterFunction("greet", func(name string) string { return "hello " + name })
	e.RegisterModule("calc", map[string]interface{}{
		"add": func(a, b int) int { return a + b },
	})
	require.NoError(t, e.ParseString(`
local calc = require("calc")
function run(name)
	return greet(name), calc.add(2, 3)
end
`))

	assert.True(t, e.IsFunction("run"))
	assert.False(t, e.IsFunction("missing"))

	rets, err := e.Call("run", 2, "lua")
	require.NoError(t, err)
	require.Len(t, rets, 2)
	assert.Equal(t, "hello lua", rets[0])
	assert.EqualValues(t, 5, rets[1])

	_, err = e.Call("missing", 1)
	assert.ErrorIs(t, err, ErrNotFunction)
}

func TestLuaEngine_RequireThroughFileLoader(t *testing.T) {
	e := newTestLuaEngine(t, map[string]string{
		"lib/util.lua":     `return { name = "util" }`,
		"lib/pkg/init.lua": `return { name = "pkg" }`,
		"main.lua":         `local u = require("lib.util"); local p = require("lib.pkg"); result = u.name .. "+" .. p.name`,
	})

	require.NoError(t, e.ParseFile("main.lua"))
	assert.Equal(t, "util+pkg", e.GetVM().GetGlobal("result").String())
}

func TestLuaEngine_HostErrorRoundTrip(t *testing.T) {
	e := newTestLuaEngine(t, nil)
	hostErr := errors.New("no such account")
	e.RegisterFunction("lookup", func() error { return hostErr })
	require.NoError(t, e.ParseString(`function run() lookup() end`))

	_, err := e.Call("run", 0)
	require.Error(t, err)

	var se *ScriptError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "[HostError] no such account", se.Message)
	assert.ErrorIs(t, err, hostErr)
}

func TestLuaEngine_ScriptErrors(t *testing.T) {
	e := newTestLuaEngine(t, nil)

	err := e.ParseString(`error("exploded")`)
	var se *ScriptError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Message, "exploded")
	assert.NotEmpty(t, se.Frames)

	err = e.ParseString(`function (`)
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Message, "[SyntaxError]")

	err = e.ParseFile("missing.lua")
	assert.ErrorIs(t, err, ErrModuleNotFound)
}

func TestParseLuaTraceback(t *testing.T) {
	trace := "stack traceback:\n\t[G]: in function 'error'\n\tmain.lua:3: in function 'inner'\n\tmain.lua:6: in main chunk\n\t[G]: ?"

	frames := parseLuaTraceback(trace)
	assert.Equal(t, []StackFrame{
		{TypeName: UnknownName, Name: "error", Line: LineNative},
		{TypeName: UnknownName, Name: "inner", File: "main.lua", Line: 3},
		{TypeName: UnknownName, Name: "main chunk", File: "main.lua", Line: 6},
		{TypeName: UnknownName, Name: AnonymousName, Line: LineNative},
	}, frames)
}
