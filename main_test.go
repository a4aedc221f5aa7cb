package engine

import (
	"bytes"
	"os"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := InitializeGlobal(GlobalConfig{}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// memFiles builds a FileLoader over an in-memory filesystem.
func memFiles(t *testing.T, files map[string]string) *AssetLoader {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
	return NewAssetLoader(fs)
}

func testLogger() (*log.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel}), &buf
}

// newTestJsEngine creates a JavaScript engine over files. The engine is
// closed when the test ends.
func newTestJsEngine(t *testing.T, files map[string]string) (*JsEngine, *bytes.Buffer) {
	t.Helper()
	logger, buf := testLogger()
	e, err := NewJsEngine(Options{
		Files:       memFiles(t, files),
		Logger:      logger,
		Environment: "Test",
		Platform:    "testos",
		Debug:       true,
	})
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e, buf
}
