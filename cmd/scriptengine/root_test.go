package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		flagCall = ""
		flagRoot = ""
		flagEngine = ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "scriptengine dev")
}

func TestEvalCommand(t *testing.T) {
	out, err := execute(t, "eval", "6 * 7", "--root", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)
}

func TestRunCommand(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "app"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app", "index.js"),
		[]byte(`exports.greeting = require('./greeting.json').text; global.hello = function () { return exports.greeting; };`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app", "greeting.json"), []byte(`{"text": "hi"}`), 0o644))

	t.Run("prints exports", func(t *testing.T) {
		out, err := execute(t, "run", "app", "--root", root)
		require.NoError(t, err)
		assert.Equal(t, "{\n    \"greeting\": \"hi\"\n}\n", out)
	})

	t.Run("calls a global", func(t *testing.T) {
		out, err := execute(t, "run", "app", "--root", root, "--call", "hello")
		require.NoError(t, err)
		assert.Equal(t, "hi\n", out)
	})

	t.Run("reports missing module", func(t *testing.T) {
		_, err := execute(t, "run", "missing", "--root", root)
		assert.ErrorContains(t, err, "Cannot find module 'missing'")
	})
}
