package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/songzhibin97/sentinel/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the assessment HTTP server",
	Long:  `Loads the model artifacts and exposes POST /assess-transaction over HTTP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.ServerAddr = addr
		}

		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              cfg.ServerAddr,
			Handler:           server.NewHandler(a.engine, a.metrics, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			logger.Info("starting server", "addr", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			a.Close(context.Background())
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("shutting down", "signal", sig.String())
			a.shutdown(srv, cfg.ShutdownTimeout)
			logger.Info("server stopped")
			return nil
		}
	},
}

// shutdown stops accepting requests, waits up to timeout for in-flight ones
// and then drains the engine's queued events.
func (a *app) shutdown(srv *http.Server, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Error("graceful shutdown did not complete", "timeout", timeout, "error", err)
		if err := srv.Close(); err != nil {
			a.logger.Error("failed to close server", "error", err)
		}
	}
	// ctx may have expired during Shutdown; the engine drain is not bounded by it.
	a.Close(context.Background())
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (overrides server_addr)")
}
