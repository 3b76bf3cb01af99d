package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/paid-chapter-feed/internal/api"
	"github.com/JakeFAU/paid-chapter-feed/internal/schedule"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	buildOnStart bool
}

// newServeCmd creates the 'serve' subcommand: the HTTP API plus the cron
// schedule, running until the process is signalled.
func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API and the periodic feed build",
		Long: `Starts the HTTP server exposing health, readiness, metrics and the run
endpoints, and triggers a feed build on the configured cron schedule.
SIGINT or SIGTERM drains the server and stops the schedule.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeCommand(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.buildOnStart, "build-on-start", false, "trigger a build as soon as the server is up")
	return cmd
}

func runServeCommand(cmd *cobra.Command, opts *serveOptions) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.GetConfig()
	logger := appInstance.GetLogger()
	runner := appInstance.GetRunner()

	ctx, stop := context.WithCancel(cmd.Context())
	defer stop()

	apiServer := api.NewServer(ctx, runner, appInstance.GetRuns(), cfg, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var sched *schedule.Scheduler
	if cfg.Schedule.Enabled {
		sched, err = schedule.New(cfg.Schedule.Cron, runner, logger)
		if err != nil {
			return fmt.Errorf("init schedule: %w", err)
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start schedule: %w", err)
		}
		defer sched.Stop()
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if opts.buildOnStart {
		if runID, err := runner.Start(ctx); err != nil {
			logger.Warn("initial feed build not started", zap.Error(err))
		} else {
			logger.Info("initial feed build started", zap.String("run_id", runID))
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	stop()
	waitForBuild(shutdownCtx, runner.Running, logger)
	logger.Info("shutdown complete")
	return runErr
}

// waitForBuild gives an in-flight build the chance to write its partial feed
// before the process exits.
func waitForBuild(ctx context.Context, running func() bool, logger *zap.Logger) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for running() {
		select {
		case <-ctx.Done():
			logger.Warn("feed build still running at shutdown")
			return
		case <-ticker.C:
		}
	}
}
