package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	engine "github.com/icyseptember2237/scriptengine"
	"github.com/icyseptember2237/scriptengine/internal/config"
	"github.com/icyseptember2237/scriptengine/internal/output"
)

var (
	// Global flags
	flagConfig  string
	flagRoot    string
	flagEngine  string
	flagVerbose bool

	// cfg is the loaded configuration, populated before any subcommand runs.
	cfg *config.Config
)

// rootCmd is the base command for the scriptengine CLI.
var rootCmd = &cobra.Command{
	Use:   "scriptengine",
	Short: "Run scripts in an embedded engine",
	Long: `scriptengine runs JavaScript, Lua or Go scripts the way an embedding
host would.

JavaScript modules are resolved CommonJS style against the asset root:
  - relative ids are resolved against the requiring module
  - package.json main, index.js, .js and .json candidates are tried
  - every module is evaluated at most once`,
	PersistentPreRunE: initializeGlobals,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to config file (env: SCRIPTENGINE_CONFIG)")
	rootCmd.PersistentFlags().StringVarP(&flagRoot, "root", "r", "", "asset root modules are resolved against (env: SCRIPTENGINE_ASSET_ROOT)")
	rootCmd.PersistentFlags().StringVarP(&flagEngine, "engine", "e", "", "engine backend: js, lua or go (env: SCRIPTENGINE_ENGINE)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "increase output verbosity")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newEvalCmd())
}

// initializeGlobals loads configuration, sets up logging and performs the
// one-time runtime bring-up.
func initializeGlobals(_ *cobra.Command, _ []string) error {
	loaded, err := config.NewLoader().LoadWithDefaults(getConfigFile())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if flagRoot != "" {
		loaded.AssetRoot = flagRoot
	}
	if flagEngine != "" {
		loaded.Engine = flagEngine
	}
	if flagVerbose {
		loaded.Log.Verbose = true
	}
	cfg = loaded

	output.SetupLogging(output.LogConfig{
		Verbose:    cfg.Log.Verbose,
		Timestamps: cfg.Log.Timestamps,
	})
	output.Debug("scriptengine started", "version", version, "engine", cfg.Engine, "root", cfg.AssetRoot)

	err = engine.InitializeGlobal(engine.GlobalConfig{
		MaxHeapMB: cfg.MaxHeapMB,
		GCPercent: cfg.GCPercent,
	})
	if err != nil && !errors.Is(err, engine.ErrGlobalAlreadyInitialized) {
		return err
	}
	return nil
}

// getConfigFile returns the config file path from flags or environment.
func getConfigFile() string {
	if flagConfig != "" {
		return flagConfig
	}
	return os.Getenv("SCRIPTENGINE_CONFIG")
}

// newEngine creates the configured backend with its FileLoader rooted at the
// asset root.
func newEngine() (engine.Engine, error) {
	opts := engine.OptionsFromConfig(cfg, engine.NewDirLoader(cfg.AssetRoot))
	return engine.InitEnginePool(cfg.Engine, opts).New()
}

// reportError renders script errors with their stack trace.
func reportError(err error) error {
	var se *engine.ScriptError
	if errors.As(err, &se) {
		output.Println(output.FormatFailure(se.Message, se.StackTrace()))
		return errors.New("script failed")
	}
	return err
}
