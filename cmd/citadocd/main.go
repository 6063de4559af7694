package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/citadoc/internal/cli"
	"github.com/cloo-solutions/citadoc/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "citadocd",
		Short: "Citadoc daemon and CLI",
		Long:  "Citadoc daemon for running the document Q&A API server and indexing documents from the command line",
		Annotations: map[string]string{
			cli.EnvAnnotation: "DATABASE_URL,OPENAI_API_KEY,OPENAI_BASE_URL,S3_ENDPOINT,S3_BUCKET,STORAGE_DIR,SENTRY_DSN",
		},
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.IngestCmd())
	rootCmd.AddCommand(admin.ReindexCmd())
	rootCmd.AddCommand(admin.WatchCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
