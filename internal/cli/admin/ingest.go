package admin

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cloo-solutions/citadoc/internal/service"
	"github.com/spf13/cobra"
)

// IngestCmd returns the ingest command
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Index local files",
		Long:  "Extract, chunk, embed and index one or more local .pdf or .txt files without going through the API",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runIngest,
	}

	cmd.Flags().String("replace", "", "Replace the document with this ID instead of creating a new one (single file only)")
	addDatabaseFlags(cmd)

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	replaceID, _ := cmd.Flags().GetString("replace")
	if replaceID != "" && len(args) != 1 {
		return fmt.Errorf("--replace takes exactly one file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	failed := 0
	for _, path := range args {
		result, err := ingestFile(ctx, a.ingest, path, replaceID)
		if err != nil {
			log.Printf("ingest %s failed: %v", path, err)
			failed++
			continue
		}
		fmt.Printf("%s\t%s\t%d lines\t%d chunks\n", result.Document.ID, result.Document.Name, result.Document.LineCount, result.ChunkCount)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}

func ingestFile(ctx context.Context, svc *service.IngestService, path, replaceID string) (*service.UploadResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	input := service.UploadInput{
		FileName: filepath.Base(path),
		Size:     info.Size(),
		Body:     file,
	}
	if replaceID != "" {
		return svc.Replace(ctx, replaceID, input)
	}
	return svc.Upload(ctx, input)
}

// ReindexCmd returns the reindex command
func ReindexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex [document-id]...",
		Short: "Re-chunk and re-embed stored documents",
		Long:  "Rebuild the chunks of stored documents from their original files, e.g. after changing the embedding model or chunk settings. Without arguments every document is reindexed.",
		RunE:  runReindex,
	}

	addDatabaseFlags(cmd)

	return cmd
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if len(args) == 0 {
		count, err := a.ingest.ReindexAll(ctx)
		fmt.Printf("reindexed %d documents\n", count)
		return err
	}

	for _, id := range args {
		result, err := a.ingest.Reindex(ctx, id)
		if err != nil {
			return fmt.Errorf("reindex %s: %w", id, err)
		}
		fmt.Printf("%s\t%s\t%d chunks\n", result.Document.ID, result.Document.Name, result.ChunkCount)
	}
	return nil
}
