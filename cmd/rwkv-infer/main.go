// Command rwkv-infer drives a model through a handful of inference
// steps and round-trips recurrent state through a checkpoint store, as
// a small console harness for the runtime in this module.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rwkv-infer",
		Short: "Run RWKV inference against a synthetic or configured model",
		Long: `rwkv-infer drives the recurrent inference runtime directly from the
command line: it builds a model from a YAML topology config (or a small
built-in default), steps tokens through it, and can snapshot or restore
recurrent state to a BadgerDB-backed checkpoint store.`,
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newInitConfigCmd())
	rootCmd.AddCommand(newCheckpointCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
