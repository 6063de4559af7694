package admin

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/citadoc/internal/api/handlers"
	"github.com/cloo-solutions/citadoc/internal/server"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the citadoc API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().String("watch", "", "Also ingest files dropped into this directory")
	addDatabaseFlags(cmd)

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	port := a.cfg.Port
	if cmd.Flags().Changed("port") {
		port, _ = cmd.Flags().GetString("port")
	}

	router := server.NewRouter(server.RouterConfig{
		DocumentHandler: handlers.NewDocumentHandler(a.ingest),
		ChatHandler:     handlers.NewChatHandler(a.chat),
		HealthCheck:     a.pool.Ping,
		MaxUploadBytes:  a.cfg.MaxFileSize,
		CORSOrigins:     a.cfg.CORSOrigins,
		FilesDir:        a.filesDir,
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var stopWatch func()
	if dir, _ := cmd.Flags().GetString("watch"); dir != "" {
		stopWatch, err = startWatch(ctx, a, dir, 0)
		if err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("starting server on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}
	log.Println("shutting down...")

	if stopWatch != nil {
		stopWatch()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}
