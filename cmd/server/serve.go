package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forestry/woodland-review/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve starts the HTTP API and shuts down gracefully on SIGINT/SIGTERM.

On shutdown the server stops accepting connections, waits up to 30s for
active requests to finish, then closes the database.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	svc, err := newServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	handler := api.NewHandler(svc.engine, svc.tracker, svc.audit)
	server := &http.Server{
		Addr:         svc.cfg.Addr(),
		Handler:      api.NewRouter(handler, svc.cfg.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		svc.log.Info("server starting", "addr", server.Addr, "database", svc.cfg.DatabasePath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			svc.log.Error("server failed", "error", err)
			return err
		}
	case <-quit:
	}

	svc.log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		svc.log.Error("server forced to shutdown", "error", err)
		return err
	}
	svc.log.Info("server stopped")
	return nil
}
