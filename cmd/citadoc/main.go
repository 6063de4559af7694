package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/citadoc/internal/cli"
	"github.com/cloo-solutions/citadoc/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "citadoc",
		Short: "Citadoc CLI - Ask questions about your documents",
		Long: `Citadoc CLI uploads documents to a citadoc server and answers questions with cited sources.

Environment variables:
  CITADOC_API_URL   API base URL (default: http://localhost:8080)`,
		Version:     version,
		Annotations: map[string]string{cli.EnvAnnotation: "CITADOC_API_URL"},
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.DocsCmd())
	rootCmd.AddCommand(client.AskCmd())
	rootCmd.AddCommand(client.ConversationsCmd())
	rootCmd.AddCommand(client.ConfigCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
