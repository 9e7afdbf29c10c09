// Package config builds the run configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/data-flux/pkg/collection"
	"github.com/Sternrassler/data-flux/pkg/pipeline"
	"github.com/Sternrassler/data-flux/pkg/schema"
)

// Defaults.
const (
	DefaultRequestSize    = 100
	DefaultRequestTimeout = 15 * time.Second
	DefaultCacheTTL       = 5 * time.Minute
	DefaultUserAgent      = "data-flux/1.0"
)

// Config is the immutable configuration of one process run.
type Config struct {
	APIURL         string
	VersionID      int64
	RequestSize    int
	Collection     collection.Collection
	DevMode        bool
	MaxConcurrency int
	RequestTimeout time.Duration
	SchemaVersion  string
	RulesFile      string
	RateLimit      float64
	LogLevel       string
	LogFile        string
	UserAgent      string
	RedisURL       string
	CacheTTL       time.Duration
	DatabaseURL    string
	VersionTitle   string
	VersionTTL     time.Duration
	PushgatewayURL string
}

// Load reads the configuration through getenv (os.Getenv in production).
// Every problem found is reported, not only the first.
func Load(getenv func(string) string) (Config, error) {
	p := parser{getenv: getenv}

	cfg := Config{
		APIURL:         p.url("API_URL", true),
		VersionID:      p.positiveInt64("VERSION_ID"),
		RequestSize:    p.positiveInt("REQUEST_SIZE", DefaultRequestSize),
		DevMode:        p.boolean("DEV_MODE"),
		RequestTimeout: p.duration("REQUEST_TIMEOUT", DefaultRequestTimeout),
		SchemaVersion:  p.str("SCHEMA_VERSION", schema.DefaultVersion),
		RulesFile:      p.str("RULES_FILE", ""),
		RateLimit:      p.nonNegativeFloat("RATE_LIMIT"),
		LogLevel:       p.str("LOG_LEVEL", ""),
		LogFile:        p.str("LOG_FILE", ""),
		UserAgent:      p.str("USER_AGENT", DefaultUserAgent),
		RedisURL:       p.str("REDIS_URL", ""),
		CacheTTL:       p.duration("CACHE_TTL", DefaultCacheTTL),
		DatabaseURL:    p.str("DATABASE_URL", ""),
		VersionTitle:   p.str("VERSION_TITLE", ""),
		VersionTTL:     p.duration("VERSION_TTL", 0),
		PushgatewayURL: p.url("PUSHGATEWAY_URL", false),
	}
	cfg.MaxConcurrency = p.positiveInt("MAX_CONCURRENCY", cfg.RequestSize)

	endpoint := p.str("ENDPOINT", "")
	if endpoint == "" {
		p.fail("ENDPOINT is required")
	} else if c, err := collection.Parse(endpoint); err != nil {
		p.fail("ENDPOINT: %v", err)
	} else {
		cfg.Collection = c
	}

	if cfg.RequestTimeout <= 0 {
		p.fail("REQUEST_TIMEOUT must be > 0")
	}

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Pipeline returns the run configuration for the pipeline runner.
func (c Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		Collection:     c.Collection,
		VersionID:      c.VersionID,
		VersionTitle:   c.VersionTitle,
		VersionTTL:     c.VersionTTL,
		SchemaVersion:  c.SchemaVersion,
		RequestSize:    c.RequestSize,
		MaxConcurrency: c.MaxConcurrency,
		RequestTimeout: c.RequestTimeout,
		DevMode:        c.DevMode,
	}
}

// CacheEnabled reports whether pages should be cached in Redis.
func (c Config) CacheEnabled() bool {
	return c.RedisURL != "" && c.CacheTTL > 0
}

type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) fail(format string, args ...any) {
	p.errs = append(p.errs, fmt.Errorf(format, args...))
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) url(key string, required bool) string {
	v := p.str(key, "")
	if v == "" {
		if required {
			p.fail("%s is required", key)
		}
		return ""
	}
	u, err := url.Parse(v)
	if err != nil || u.Scheme == "" || u.Host == "" {
		p.fail("%s: invalid url %q", key, v)
		return ""
	}
	return strings.TrimSuffix(v, "/")
}

func (p *parser) positiveInt64(key string) int64 {
	v := p.str(key, "")
	if v == "" {
		p.fail("%s is required", key)
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		p.fail("%s must be a positive integer (got %q)", key, v)
		return 0
	}
	return n
}

func (p *parser) positiveInt(key string, def int) int {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		p.fail("%s must be a positive integer (got %q)", key, v)
		return def
	}
	return n
}

func (p *parser) nonNegativeFloat(key string) float64 {
	v := p.str(key, "")
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		p.fail("%s must be a number >= 0 (got %q)", key, v)
		return 0
	}
	return f
}

func (p *parser) boolean(key string) bool {
	v := p.str(key, "")
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail("%s must be a boolean (got %q)", key, v)
		return false
	}
	return b
}

// duration accepts Go durations ("90s", "5m") or plain integer seconds.
func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			p.fail("%s must be >= 0 (got %q)", key, v)
			return def
		}
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		p.fail("%s must be a duration >= 0 (got %q)", key, v)
		return def
	}
	return d
}
