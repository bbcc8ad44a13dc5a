// Command causalmem runs the causal event memory service: a REST API
// (serve) and an MCP tool server (mcp) over a shared event store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/causalmem/causalmem/internal/config"
	"github.com/causalmem/causalmem/internal/version"
)

var verboseFlag bool

var rootCmd = &cobra.Command{
	Use:   "causalmem",
	Short: "Causal event memory service",
	Long: "causalmem stores short natural-language events, links them into causal\n" +
		"chains automatically, and answers queries with chronological narratives.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.Initialize()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("causalmem %s\n", version.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug output")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
