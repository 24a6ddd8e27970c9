package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-article/pkg/simplearticle/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	_ = godotenv.Load()

	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "articlectl",
		Short: "Operate a simple-article deployment",
		Long: `articlectl runs schema migrations, resolves redirect stubs,
audits the redirect table and rebuilds the article catalog.

Configuration is read from the same environment variables as the server
(DATABASE_URL, DB_SCHEMA, REDIS_URL, ...). A .env file in the working
directory is loaded first when present.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("env-prefix", "", "prefix for configuration environment variables")
	rootCmd.PersistentFlags().String("env-file", "", "additional env file to read")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().Bool("json", false, "print results as JSON")

	rootCmd.AddCommand(NewMigrateCommand())
	rootCmd.AddCommand(NewResolveCommand())
	rootCmd.AddCommand(NewRedirectsCommand())
	rootCmd.AddCommand(NewCatalogCommand())

	return rootCmd
}

// loadConfig reads the server configuration using the global flags.
func loadConfig(cmd *cobra.Command) (*config.ServerConfig, error) {
	prefix, _ := cmd.Flags().GetString("env-prefix")
	envFile, _ := cmd.Flags().GetString("env-file")

	opts := []config.Option{}
	if envFile != "" {
		opts = append(opts, config.WithEnvFile(envFile))
	}
	opts = append(opts, config.WithEnv(prefix))
	// The CLI never serves metrics and logs events only when verbose.
	opts = append(opts, config.WithMetrics(false))
	verbose, _ := cmd.Flags().GetBool("verbose")
	opts = append(opts, config.WithEventLogging(verbose))

	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
}

// withComponents builds the configured components and hands them to fn.
func withComponents(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.ServerConfig, components *config.Components, logger *slog.Logger) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	components, err := cfg.BuildComponents(ctx, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	if cfg.DatabaseType == "memory" {
		logger.Warn("DATABASE_URL is not set; running against an empty in-memory repository")
	}
	return fn(ctx, cfg, components, logger)
}
