package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/marktree"
	httpAdapter "github.com/aretw0/marktree/pkg/adapters/http"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serves the tree over HTTP: reads, moves, drops, a server-sent event stream of
moved/refresh notifications and Prometheus metrics. Store events are reconciled in the
background, and the file backend is watched for external edits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, cfg, err := loadRuntime(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer rt.Close()
		logger := rt.Logger

		srv, detach := httpAdapter.NewServer(rt.Engine,
			httpAdapter.WithLogger(logger),
			httpAdapter.WithMetrics(rt.Metrics.Handler()),
			httpAdapter.WithVersion(strings.TrimSpace(marktree.Version)),
		)
		defer detach()

		httpServer := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           srv.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			return rt.Engine.Run(ctx)
		})
		if rt.Watch != nil {
			g.Go(func() error {
				return rt.Watch(ctx)
			})
		}
		g.Go(func() error {
			logger.Info("Starting marktree server", "address", httpServer.Addr, "backend", cfg.Store.Backend)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			// Give outstanding requests a deadline for completion.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Graceful shutdown did not complete", "err", err)
				return httpServer.Close()
			}
			logger.Info("marktree server stopped gracefully")
			return nil
		})

		err = g.Wait()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Address to listen on")
}
