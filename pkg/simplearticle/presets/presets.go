package presets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/tendant/simple-article/pkg/simplearticle"
	"github.com/tendant/simple-article/pkg/simplearticle/config"
	memoryrepo "github.com/tendant/simple-article/pkg/simplearticle/repo/memory"
	"github.com/tendant/simple-article/pkg/simplearticle/templates"
)

// Configuration Presets
//
// Ready-made service setups for local development, tests and production.

// NewDevelopment creates a service configured for local development.
//
// Features:
//   - In-memory repository (instant startup, no setup required)
//   - Templates read from ./templates when that directory exists
//   - Colored console logging with every lifecycle event logged
//
// Example:
//
//	svc, err := presets.NewDevelopment()
//	if err != nil {
//	    log.Fatal(err)
//	}
func NewDevelopment(opts ...DevelopmentOption) (simplearticle.Service, error) {
	cfg := &devConfig{
		templateDir: "./templates",
		logger: slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
		})),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	options := []simplearticle.Option{
		simplearticle.WithRepository(memoryrepo.New()),
		simplearticle.WithLogger(cfg.logger),
		simplearticle.WithEventSink(simplearticle.NewLoggingEventSink(cfg.logger)),
	}

	if info, err := os.Stat(cfg.templateDir); err == nil && info.IsDir() {
		provider, err := templates.NewDir(cfg.templateDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open template directory: %w", err)
		}
		options = append(options, simplearticle.WithTemplateProvider(provider))
	}

	svc, err := simplearticle.New(options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return svc, nil
}

// NewTesting creates a service configured for unit and integration tests.
//
// Every call gets its own in-memory repository and a silent logger, so tests
// can run in parallel. WithTestFixtures seeds a published home page and a
// published "About" page.
func NewTesting(t testing.TB, opts ...TestingOption) simplearticle.Service {
	t.Helper()
	cfg := &testConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	options := []simplearticle.Option{
		simplearticle.WithRepository(memoryrepo.New()),
		simplearticle.WithLogger(slog.New(slog.DiscardHandler)),
	}
	if cfg.templates != nil {
		options = append(options, simplearticle.WithTemplateProvider(templates.NewStatic(cfg.templates)))
	}

	svc, err := simplearticle.New(options...)
	if err != nil {
		t.Fatalf("failed to create test service: %v", err)
	}

	if cfg.fixtures {
		if err := seedFixtures(context.Background(), svc); err != nil {
			t.Fatalf("failed to seed fixtures: %v", err)
		}
	}
	return svc
}

// FixtureAuthor is the author of every article WithTestFixtures creates.
var FixtureAuthor = uuid.MustParse("00000000-0000-0000-0000-00000000a001")

func seedFixtures(ctx context.Context, svc simplearticle.Service) error {
	// The first article is published on creation.
	if _, err := svc.CreateContent(ctx, simplearticle.CreateArticleRequest{Title: "Home", AuthorID: FixtureAuthor}); err != nil {
		return err
	}
	about, err := svc.CreateContent(ctx, simplearticle.CreateArticleRequest{Title: "About", AuthorID: FixtureAuthor})
	if err != nil {
		return err
	}
	_, err = svc.PublishContent(ctx, simplearticle.ArticleID{Number: about.Number}, time.Time{})
	return err
}

// NewProduction builds a service from the environment through the config
// package. A postgres DATABASE_URL is required.
//
// The returned components own the database pool and redis client; call
// Close when done.
func NewProduction(ctx context.Context, logger *slog.Logger, opts ...ProductionOption) (*config.Components, error) {
	cfg := &prodConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	serverConfig, err := config.Load(append([]config.Option{config.WithEnv(cfg.envPrefix)}, cfg.overrides...)...)
	if err != nil {
		return nil, err
	}
	if serverConfig.DatabaseType != "postgres" {
		return nil, fmt.Errorf("production preset requires a postgres DATABASE_URL (memory not allowed in production)")
	}
	return serverConfig.BuildComponents(ctx, logger)
}

// devConfig holds development preset configuration
type devConfig struct {
	templateDir string
	logger      *slog.Logger
}

// testConfig holds testing preset configuration
type testConfig struct {
	fixtures  bool
	templates map[string]string
}

// prodConfig holds production preset configuration
type prodConfig struct {
	envPrefix string
	overrides []config.Option
}

// DevelopmentOption is a functional option for NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDevTemplates sets the directory templates are read from.
func WithDevTemplates(dir string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.templateDir = dir
	}
}

// WithDevLogger replaces the console logger.
func WithDevLogger(logger *slog.Logger) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.logger = logger
	}
}

// TestingOption is a functional option for NewTesting
type TestingOption func(*testConfig)

// WithTestFixtures seeds sample articles.
func WithTestFixtures() TestingOption {
	return func(cfg *testConfig) {
		cfg.fixtures = true
	}
}

// WithTestTemplates serves default bodies from a static map.
func WithTestTemplates(bodies map[string]string) TestingOption {
	return func(cfg *testConfig) {
		cfg.templates = bodies
	}
}

// ProductionOption is a functional option for NewProduction
type ProductionOption func(*prodConfig)

// WithEnvPrefix reads PREFIX_DATABASE_URL and friends instead of the bare names.
func WithEnvPrefix(prefix string) ProductionOption {
	return func(cfg *prodConfig) {
		cfg.envPrefix = prefix
	}
}

// WithConfigOverrides applies config options after the environment is read.
func WithConfigOverrides(opts ...config.Option) ProductionOption {
	return func(cfg *prodConfig) {
		cfg.overrides = append(cfg.overrides, opts...)
	}
}
