package main

import (
	"fmt"

	"github.com/spf13/cobra"

	engine "github.com/icyseptember2237/scriptengine"
)

func newEvalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eval <source>",
		Short: "Evaluate a source string",
		Args:  cobra.ExactArgs(1),
		RunE:  runEval,
	}
}

func runEval(cmd *cobra.Command, args []string) error {
	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	js, ok := e.(*engine.JsEngine)
	if !ok {
		return reportError(e.ParseString(args[0]))
	}
	v, err := js.RunString(cmd.Context(), "<eval>", args[0])
	if err != nil {
		return reportError(err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), v.String())
	return nil
}
