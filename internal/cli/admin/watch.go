package admin

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cloo-solutions/citadoc/internal/jobs"
	"github.com/spf13/cobra"
)

const watchStateFile = ".citadoc-watch.json"

// WatchCmd returns the watch command
func WatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Index files dropped into a directory",
		Long:  "Watch a directory and index new .pdf and .txt files. A changed file replaces the document it was first indexed as.",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch,
	}

	cmd.Flags().Duration("debounce", jobs.DefaultDebounce, "How long a file must stay unchanged before it is indexed")
	addDatabaseFlags(cmd)

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	debounce, _ := cmd.Flags().GetDuration("debounce")
	stopWatch, err := startWatch(ctx, a, args[0], debounce)
	if err != nil {
		return err
	}

	<-ctx.Done()
	stopWatch()
	return nil
}

// startWatch runs a directory watcher feeding a background ingest worker
// until ctx is done. The returned func waits for both to finish.
func startWatch(ctx context.Context, a *app, dir string, debounce time.Duration) (func(), error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	processor, err := jobs.NewIngestProcessor(a.ingest, debounce, filepath.Join(abs, watchStateFile))
	if err != nil {
		return nil, err
	}

	worker := jobs.NewWorker(processor, time.Second)
	go worker.Start(context.WithoutCancel(ctx))

	watcher := jobs.NewWatcher(abs, processor)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		if err := watcher.Run(ctx); err != nil {
			log.Printf("watcher stopped: %v", err)
		}
	}()

	return func() {
		<-watchDone
		worker.Stop()
	}, nil
}
