package main

import (
	"fmt"

	"github.com/spf13/cobra"

	engine "github.com/icyseptember2237/scriptengine"
	"github.com/icyseptember2237/scriptengine/internal/output"
)

var flagCall string

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <module>",
		Short: "Load a module or script",
		Long: `Load a module from the asset root.

For the js engine the argument is a module id resolved like require. For the
lua and go engines it is a file path evaluated as a script.`,
		Args: cobra.ExactArgs(1),
		RunE: runRun,
	}
	cmd.Flags().StringVar(&flagCall, "call", "", "global function to call after loading")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	id := args[0]
	if js, ok := e.(*engine.JsEngine); ok {
		exports, err := js.Require(id)
		if err != nil {
			return reportError(err)
		}
		output.Debug("module loaded", "module", output.StyleNoun.Render(id))
		if flagCall == "" {
			s, err := js.StringifyJSON(cmd.Context(), exports, true)
			if err != nil {
				return reportError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), s)
			return nil
		}
	} else if err := e.ParseFile(id); err != nil {
		return reportError(err)
	}
	e.SetReady()

	if flagCall == "" {
		return nil
	}
	rets, err := e.Call(flagCall, 1)
	if err != nil {
		return reportError(err)
	}
	for _, ret := range rets {
		fmt.Fprintln(cmd.OutOrStdout(), ret)
	}
	return nil
}
