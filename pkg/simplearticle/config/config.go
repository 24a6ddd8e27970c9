package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tendant/simple-article/pkg/simplearticle"
	rediscache "github.com/tendant/simple-article/pkg/simplearticle/cache/redis"
	"github.com/tendant/simple-article/pkg/simplearticle/metrics"
	"github.com/tendant/simple-article/pkg/simplearticle/repo/memory"
	repopg "github.com/tendant/simple-article/pkg/simplearticle/repo/postgres"
	"github.com/tendant/simple-article/pkg/simplearticle/templates"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	engine := simplearticle.DefaultConfig()
	return ServerConfig{
		Port:               "8080",
		Environment:        "development",
		DatabaseType:       "memory",
		DBSchema:           "article",
		RedirectCacheTTL:   rediscache.DefaultTTL,
		MaxRedirectDepth:   engine.MaxRedirectDepth,
		TeaserLength:       engine.TeaserLength,
		SlugPolicy:         string(engine.SlugPolicy),
		MaxSlugLength:      engine.MaxSlugLength,
		EnableEventLogging: true,
		EnableMetrics:      true,
	}
}

// ServerConfig represents configuration for the article service and its
// executables. The env tags name the keys WithEnv reads and WithEnvFile loads.
type ServerConfig struct {
	Port        string `env:"PORT"`
	Environment string `env:"ENVIRONMENT"` // development, production, testing

	// Database configuration
	DatabaseURL  string `env:"DATABASE_URL"`
	DatabaseType string // "memory", "postgres"; derived from DatabaseURL by WithEnv
	DBSchema     string `env:"DB_SCHEMA"`
	AutoMigrate  bool   `env:"AUTO_MIGRATE"`

	// Redirect cache; empty disables it
	RedisURL         string        `env:"REDIS_URL"`
	RedirectCacheTTL time.Duration `env:"REDIRECT_CACHE_TTL"`

	// Template source: "", "file:///dir" or "s3://bucket/prefix?region=..&endpoint=.."
	TemplateURL string `env:"TEMPLATE_URL"`

	// Engine tunables
	MaxRedirectDepth int      `env:"MAX_REDIRECT_DEPTH"`
	TeaserLength     int      `env:"TEASER_LENGTH"`
	SlugPolicy       string   `env:"SLUG_POLICY"`
	MaxSlugLength    int      `env:"MAX_SLUG_LENGTH"`
	ReservedPaths    []string `env:"RESERVED_PATHS" env-separator:","`

	// Server options
	EnableEventLogging bool `env:"ENABLE_EVENT_LOGGING"`
	EnableMetrics      bool `env:"ENABLE_METRICS"`
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	if !simplearticle.SlugPolicy(c.SlugPolicy).IsValid() {
		return fmt.Errorf("slug_policy must be 'suffix' or 'reject', got: %s", c.SlugPolicy)
	}

	if c.MaxRedirectDepth <= 0 {
		return fmt.Errorf("max_redirect_depth must be positive, got: %d", c.MaxRedirectDepth)
	}

	if c.TemplateURL != "" {
		if _, err := parseTemplateURL(c.TemplateURL); err != nil {
			return err
		}
	}

	return nil
}

// EngineConfig returns the core engine tunables.
func (c *ServerConfig) EngineConfig() simplearticle.Config {
	return simplearticle.Config{
		MaxRedirectDepth: c.MaxRedirectDepth,
		TeaserLength:     c.TeaserLength,
		SlugPolicy:       simplearticle.SlugPolicy(c.SlugPolicy),
		MaxSlugLength:    c.MaxSlugLength,
	}
}

// Reserved returns the default reserved paths merged with the configured ones.
func (c *ServerConfig) Reserved() simplearticle.ReservedPaths {
	paths := append([]string{}, simplearticle.DefaultReservedPaths...)
	return simplearticle.NewReservedPaths(append(paths, c.ReservedPaths...)...)
}

// Components holds everything BuildComponents wires together.
type Components struct {
	Service    simplearticle.Service
	Repository simplearticle.Repository
	Metrics    *metrics.Metrics
	Registry   *prometheus.Registry // nil when metrics are disabled
	Cache      *rediscache.Cache    // nil when REDIS_URL is empty
	Pool       *pgxpool.Pool        // nil for the memory backend
}

// Close releases connections held by the components.
func (c *Components) Close() {
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (simplearticle.Service, error) {
	components, err := c.BuildComponents(ctx, logger)
	if err != nil {
		return nil, err
	}
	return components.Service, nil
}

// BuildComponents creates the repository, optional cache, metrics and the
// service from the server configuration.
func (c *ServerConfig) BuildComponents(ctx context.Context, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	components := &Components{}
	ok := false
	defer func() {
		if !ok {
			components.Close()
		}
	}()

	options := []simplearticle.Option{
		simplearticle.WithLogger(logger),
		simplearticle.WithConfig(c.EngineConfig()),
		simplearticle.WithReservedPaths(c.Reserved()),
	}

	// Set up repository
	repo, pool, err := c.buildRepository(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	components.Repository = repo
	components.Pool = pool
	options = append(options, simplearticle.WithRepository(repo))

	if c.RedisURL != "" {
		cache, err := rediscache.NewFromURL(ctx, c.RedisURL, rediscache.WithTTL(c.RedirectCacheTTL))
		if err != nil {
			return nil, fmt.Errorf("failed to build redirect cache: %w", err)
		}
		components.Cache = cache
		options = append(options, simplearticle.WithRedirectCache(cache))
	}

	if c.TemplateURL != "" {
		provider, err := c.buildTemplateProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to build template provider: %w", err)
		}
		options = append(options, simplearticle.WithTemplateProvider(provider))
	}

	if c.EnableMetrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		components.Registry = reg
		components.Metrics = metrics.New(reg)
		options = append(options, simplearticle.WithMetrics(components.Metrics))
	}

	if c.EnableEventLogging {
		options = append(options, simplearticle.WithEventSink(simplearticle.NewLoggingEventSink(logger)))
	}

	svc, err := simplearticle.New(options...)
	if err != nil {
		return nil, err
	}
	components.Service = svc
	ok = true
	return components, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context, logger *slog.Logger) (simplearticle.Repository, *pgxpool.Pool, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil, nil
	case "postgres":
		if c.DatabaseURL == "" {
			return nil, nil, errors.New("database_url is required for postgres")
		}
		if c.AutoMigrate {
			if err := repopg.MigrateUp(c.DatabaseURL, logger); err != nil {
				return nil, nil, err
			}
		}
		pool, err := c.newPool(ctx)
		if err != nil {
			return nil, nil, err
		}
		return repopg.NewWithPool(pool), pool, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func (c *ServerConfig) newPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	schema := c.DBSchema
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if schema == "" {
			return nil
		}
		_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
		return err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

// PingPostgres verifies connectivity to Postgres with the configured schema.
func (c *ServerConfig) PingPostgres(ctx context.Context) error {
	if c.DatabaseURL == "" {
		return errors.New("database_url is required")
	}
	pool, err := c.newPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

type templateSource struct {
	kind   string // "file", "s3"
	dir    string
	s3     templates.S3Config
}

func parseTemplateURL(raw string) (*templateSource, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid TEMPLATE_URL: %w", err)
	}
	switch u.Scheme {
	case "file":
		if u.Path == "" {
			return nil, errors.New("template directory cannot be empty in TEMPLATE_URL")
		}
		return &templateSource{kind: "file", dir: u.Path}, nil
	case "s3":
		if u.Host == "" {
			return nil, errors.New("S3 bucket name cannot be empty in TEMPLATE_URL")
		}
		q := u.Query()
		prefix := strings.TrimPrefix(u.Path, "/")
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		return &templateSource{kind: "s3", s3: templates.S3Config{
			Bucket:       u.Host,
			Prefix:       prefix,
			Region:       q.Get("region"),
			Endpoint:     q.Get("endpoint"),
			UsePathStyle: q.Get("path_style") == "true",
		}}, nil
	default:
		return nil, fmt.Errorf("unsupported TEMPLATE_URL format: %s (use 'file://...' or 's3://...')", raw)
	}
}

func (c *ServerConfig) buildTemplateProvider(ctx context.Context) (simplearticle.TemplateProvider, error) {
	src, err := parseTemplateURL(c.TemplateURL)
	if err != nil {
		return nil, err
	}
	switch src.kind {
	case "file":
		return templates.NewDir(src.dir)
	default:
		return templates.NewS3(ctx, src.s3)
	}
}
