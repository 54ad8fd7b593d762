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

	"github.com/jengzang/region-insights-go/internal/api"
	"github.com/jengzang/region-insights-go/internal/database"
	"github.com/jengzang/region-insights-go/internal/middleware"
	"github.com/jengzang/region-insights-go/internal/repository"
	"github.com/jengzang/region-insights-go/internal/service"
	"github.com/jengzang/region-insights-go/internal/spatial"
)

func createServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline, store the snapshot and serve the read-only API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if v, _ := cmd.Flags().GetString("port"); v != "" {
				a.cfg.Port = v
			}
			return a.serve(cmd.Context())
		},
	}
	bindInputFlags(cmd)
	cmd.Flags().String("port", "", "listen address (env PORT)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Init(database.Config{Path: a.cfg.DBPath, Logger: a.logger}); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()
	repo := repository.NewSnapshotRepository(database.GetDB())

	res, boundaries, err := a.run(ctx)
	if err != nil {
		return err
	}
	if err := repo.SaveRun(ctx, res); err != nil {
		return err
	}

	var idx *spatial.Index
	if boundaries != nil {
		if idx, err = a.engine.Index(boundaries, spatial.Level(a.cfg.BoundaryLevel)); err != nil {
			return err
		}
	}

	// RATE_LIMIT=0 disables limiting
	var limiter *middleware.RateLimiter
	if a.cfg.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(ctx, a.cfg.RateLimit, time.Minute)
	}
	router := api.SetupRouter(api.Deps{
		Insights: service.NewInsightsService(repo, a.normalizer, idx),
		Metrics:  a.metrics,
		Limiter:  limiter,
		Logger:   a.logger,
	})
	srv := &http.Server{
		Addr:              a.cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "addr", a.cfg.Port, "run_id", res.RunID)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
