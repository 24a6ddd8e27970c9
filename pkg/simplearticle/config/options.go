package config

import (
	"fmt"
	"time"

	"github.com/tendant/simple-article/pkg/simplearticle"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithAutoMigrate runs embedded migrations when the postgres repository is built
func WithAutoMigrate(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.AutoMigrate = enabled
		return nil
	}
}

// WithRedisCache enables the redirect cache
func WithRedisCache(url string, ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		if url == "" {
			return fmt.Errorf("redis URL cannot be empty")
		}
		c.RedisURL = url
		if ttl > 0 {
			c.RedirectCacheTTL = ttl
		}
		return nil
	}
}

// WithTemplateURL sets where default article bodies are read from
func WithTemplateURL(url string) Option {
	return func(c *ServerConfig) error {
		c.TemplateURL = url
		return nil
	}
}

// WithSlugPolicy sets the slug collision policy
func WithSlugPolicy(policy simplearticle.SlugPolicy) Option {
	return func(c *ServerConfig) error {
		if !policy.IsValid() {
			return fmt.Errorf("slug policy must be 'suffix' or 'reject', got: %s", policy)
		}
		c.SlugPolicy = string(policy)
		return nil
	}
}

// WithMaxRedirectDepth caps redirect chain traversal
func WithMaxRedirectDepth(depth int) Option {
	return func(c *ServerConfig) error {
		if depth <= 0 {
			return fmt.Errorf("max redirect depth must be positive, got: %d", depth)
		}
		c.MaxRedirectDepth = depth
		return nil
	}
}

// WithReservedPaths adds reserved paths on top of the built-in ones
func WithReservedPaths(paths ...string) Option {
	return func(c *ServerConfig) error {
		c.ReservedPaths = append(c.ReservedPaths, paths...)
		return nil
	}
}

// WithEventLogging enables or disables the logging event sink
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}

// WithMetrics enables or disables Prometheus metrics
func WithMetrics(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableMetrics = enabled
		return nil
	}
}
