// Command shapecheck coerces documents against shape descriptors and serves
// the descriptor registry over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "shapecheck",
	Short:         "Coerce JSON and YAML documents against shape descriptors",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(checkCmd, schemaCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "shapecheck:", err)
		os.Exit(1)
	}
}
