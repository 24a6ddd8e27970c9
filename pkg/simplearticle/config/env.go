package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// WithEnv applies environment variable overrides using the provided prefix.
//
// Every variable is read as <prefix><NAME>, e.g. SIMPLE_ARTICLE_DATABASE_URL
// for prefix "SIMPLE_ARTICLE_". Unset or empty variables keep the value from
// defaults or earlier options.
//
// Server:
//
//	PORT, ENVIRONMENT
//
// Database:
//
//	DATABASE_URL        ""/"memory" for the in-memory repository, or
//	                    "postgres://..." / "postgresql://..." for PostgreSQL
//	DB_SCHEMA, AUTO_MIGRATE
//
// Redirects and slugs:
//
//	REDIS_URL, REDIRECT_CACHE_TTL, MAX_REDIRECT_DEPTH, SLUG_POLICY,
//	MAX_SLUG_LENGTH, RESERVED_PATHS (comma separated, merged with built-ins)
//
// Catalog, templates and observability:
//
//	TEASER_LENGTH, TEMPLATE_URL, ENABLE_EVENT_LOGGING, ENABLE_METRICS
func WithEnv(prefix string) Option {
	return func(c *ServerConfig) error {
		for key, dst := range map[string]*string{
			"PORT":         &c.Port,
			"ENVIRONMENT":  &c.Environment,
			"DATABASE_URL": &c.DatabaseURL,
			"DB_SCHEMA":    &c.DBSchema,
			"REDIS_URL":    &c.RedisURL,
			"TEMPLATE_URL": &c.TemplateURL,
			"SLUG_POLICY":  &c.SlugPolicy,
		} {
			if v, ok := lookupEnv(prefix, key); ok && v != "" {
				*dst = v
			}
		}

		for key, dst := range map[string]*int{
			"MAX_REDIRECT_DEPTH": &c.MaxRedirectDepth,
			"TEASER_LENGTH":      &c.TeaserLength,
			"MAX_SLUG_LENGTH":    &c.MaxSlugLength,
		} {
			v, ok, err := parseIntEnv(prefix, key)
			if err != nil {
				return err
			}
			if ok {
				*dst = v
			}
		}

		for key, dst := range map[string]*bool{
			"AUTO_MIGRATE":         &c.AutoMigrate,
			"ENABLE_EVENT_LOGGING": &c.EnableEventLogging,
			"ENABLE_METRICS":       &c.EnableMetrics,
		} {
			v, ok, err := parseBoolEnv(prefix, key)
			if err != nil {
				return err
			}
			if ok {
				*dst = v
			}
		}

		ttl, ok, err := parseDurationEnv(prefix, "REDIRECT_CACHE_TTL")
		if err != nil {
			return err
		}
		if ok {
			c.RedirectCacheTTL = ttl
		}
		if v, ok := lookupEnv(prefix, "RESERVED_PATHS"); ok && v != "" {
			c.ReservedPaths = splitList(v)
		}

		return applyDatabaseURL(c)
	}
}

// WithEnvFile loads a .env file with the unprefixed keys WithEnv uses. The
// file's values are exported into the process environment.
func WithEnvFile(path string) Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadConfig(path, c); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return applyDatabaseURL(c)
	}
}

// applyDatabaseURL derives DatabaseType from DatabaseURL.
func applyDatabaseURL(c *ServerConfig) error {
	dbURL := c.DatabaseURL
	switch {
	case dbURL == "" || dbURL == "memory":
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		c.DatabaseType = "postgres"
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", dbURL)
	}
	return nil
}

func lookupEnv(prefix, key string) (string, bool) {
	return os.LookupEnv(prefix + key)
}

func parseBoolEnv(prefix, key string) (bool, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return false, false, nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("invalid boolean for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}

func parseIntEnv(prefix, key string) (int, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid integer for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}

func parseDurationEnv(prefix, key string) (time.Duration, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid duration for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
