// Package cmd defines and implements the CLI commands for the chapterfeed executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/paid-chapter-feed/internal/app"
	"github.com/JakeFAU/paid-chapter-feed/internal/catalog"
	"github.com/JakeFAU/paid-chapter-feed/internal/config"
	"github.com/JakeFAU/paid-chapter-feed/internal/crawler"
	"github.com/JakeFAU/paid-chapter-feed/internal/logging"
	"github.com/JakeFAU/paid-chapter-feed/internal/modified"
	"github.com/JakeFAU/paid-chapter-feed/internal/pipeline"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a stub app during tests.
type App interface {
	Close()
	GetLogger() *zap.Logger
	GetConfig() config.Config
	GetRunner() *pipeline.Runner
	GetModified() *modified.Builder
	GetRuns() crawler.RunStore
	GetCatalog() catalog.Source
	ImportCatalog(ctx context.Context, path string) (int, error)
}

// newApp is the application factory. It's a variable so tests can
// replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

type rootOptions struct {
	configPath string
	envFile    string
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "chapterfeed",
		Short: "Builds an RSS feed of newly released paid chapters.",
		Long: `chapterfeed crawls the chapter lists of every tracked novel, keeps the
paid chapters released inside the staleness window and writes them as an
RSS 2.0 feed that a Discord bot can post with the translator's role mention.`,
		SilenceUsage: true,

		// Builds the application once per invocation and hands it to the
		// subcommand through the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(opts.envFile); err != nil {
				return err
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logging.Sync(logger)
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")

	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newImportCatalogCmd())

	return cmd
}

// loadEnvFile loads a dotenv file into the process environment. A missing
// file is not an error; variables already set are left alone.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "chapterfeed:", err)
		os.Exit(1)
	}
}
