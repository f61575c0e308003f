package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	httpDelivery "github.com/booklens/backend/internal/delivery/http"
	"github.com/booklens/backend/internal/logging"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Example: `  # Start on the configured port (default 8080)
  booklens serve

  # Start on a custom port
  booklens serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(os.Stdout)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Server.Port = port
			}

			svc, err := buildServices(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			handler := httpDelivery.NewHandler(svc.identifier, svc.recommender, httpDelivery.HandlerConfig{
				RequestTimeout: cfg.Server.RequestTimeout,
				MaxImageBytes:  cfg.Image.MaxBytes,
			}, logger)
			router := httpDelivery.SetupRouter(cfg, handler, logger)

			addr := ":" + cfg.Server.Port
			server := &http.Server{
				Addr:              addr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			serverErr := make(chan error, 1)
			go func() {
				logger.Info("server listening",
					logging.String("addr", addr),
					logging.String("environment", cfg.Server.Environment),
				)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-cmd.Context().Done():
				logger.Info("shutting down server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.Error("server shutdown failed", logging.Error(err))
					return err
				}
				logger.Info("server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides server.port)")

	return cmd
}
