package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/guillermoBallester/tabula/internal/core/domain"
)

// Dataset sources.
const (
	SourceHTTP     = "http"
	SourcePostgres = "postgres"
)

// MCP transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

type Config struct {
	// Dataset source.
	Source string // "http" (default) or "postgres"

	// Dataset API collaborator.
	APIBaseURL       string
	APIToken         string
	RequestTimeout   time.Duration
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	RateLimitRPS     float64 // 0 disables client-side limiting
	RateLimitBurst   int

	// PostgreSQL source.
	DatabaseURL string
	Schemas     []string // empty means all non-system schemas

	// View and chart.
	PageSize    int
	SampleLimit int // distinct sample values reported per column
	NullLabel   string

	PolicyFile string // optional path to policy YAML

	// Logging.
	LogLevel slog.Level

	// Transport.
	Transport       string // "stdio" (default) or "http"
	HTTPAddr        string // listen address for HTTP transport (default ":8080")
	HTTPBearerToken string // required when transport=http

	// Connection pool.
	PoolMaxConns        int32         // default: 5
	PoolMinConns        int32         // default: 1
	PoolMaxConnLifetime time.Duration // default: 30m

	// Observability.
	OTelEnabled bool

	// CLI-only fields (not settable via env vars).
	AuditLog string // path to NDJSON audit log file
}

// Overrides holds CLI flag values that override environment variables.
// Pointer fields distinguish "not set" from zero values.
type Overrides struct {
	Source          *string
	APIBaseURL      *string
	APIToken        *string
	DatabaseURL     *string
	LogLevel        *string
	PageSize        *int
	RequestTimeout  *time.Duration
	NullLabel       *string
	PolicyFile      *string
	Transport       *string
	HTTPAddr        *string
	HTTPBearerToken *string
	OTelEnabled     bool
	AuditLog        string

	// Connection pool overrides.
	PoolMaxConns        *int32
	PoolMinConns        *int32
	PoolMaxConnLifetime *time.Duration
}

// Load builds a Config from environment variables, then applies CLI overrides,
// then validates the result.
func Load(overrides Overrides) (*Config, error) {
	cfg := defaults()

	if err := loadEnvVars(cfg); err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaults returns a Config populated with default values.
func defaults() *Config {
	return &Config{
		Source:              SourceHTTP,
		RequestTimeout:      30 * time.Second,
		RetryMaxAttempts:    3,
		RetryBaseDelay:      500 * time.Millisecond,
		RetryMaxDelay:       4 * time.Second,
		RateLimitBurst:      1,
		PageSize:            domain.DefaultPageSize,
		SampleLimit:         50,
		NullLabel:           domain.DefaultNullLabel,
		LogLevel:            slog.LevelInfo,
		Transport:           TransportStdio,
		HTTPAddr:            ":8080",
		PoolMaxConns:        5,
		PoolMinConns:        1,
		PoolMaxConnLifetime: 30 * time.Minute,
	}
}

// loadEnvVars reads all supported environment variables into cfg.
func loadEnvVars(cfg *Config) error {
	if v := os.Getenv("SOURCE"); v != "" {
		cfg.Source = strings.ToLower(strings.TrimSpace(v))
	}
	cfg.APIBaseURL = os.Getenv("API_BASE_URL")
	cfg.APIToken = os.Getenv("API_TOKEN")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	if err := envDuration("REQUEST_TIMEOUT", &cfg.RequestTimeout); err != nil {
		return err
	}
	if err := envInt("RETRY_MAX_ATTEMPTS", 1, &cfg.RetryMaxAttempts); err != nil {
		return err
	}
	if err := envDuration("RETRY_BASE_DELAY", &cfg.RetryBaseDelay); err != nil {
		return err
	}
	if err := envDuration("RETRY_MAX_DELAY", &cfg.RetryMaxDelay); err != nil {
		return err
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("invalid RATE_LIMIT_RPS value %q: must be a non-negative number", v)
		}
		cfg.RateLimitRPS = f
	}
	if err := envInt("RATE_LIMIT_BURST", 1, &cfg.RateLimitBurst); err != nil {
		return err
	}

	if err := envInt("PAGE_SIZE", 1, &cfg.PageSize); err != nil {
		return err
	}
	if err := envInt("SAMPLE_LIMIT", 1, &cfg.SampleLimit); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("NULL_CATEGORY_LABEL"); ok {
		cfg.NullLabel = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	if v := os.Getenv("SCHEMAS"); v != "" {
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				cfg.Schemas = append(cfg.Schemas, s)
			}
		}
	}

	cfg.PolicyFile = os.Getenv("POLICY_FILE")

	if v := os.Getenv("TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.HTTPBearerToken = os.Getenv("HTTP_BEARER_TOKEN")

	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OTEL_ENABLED value %q: %w", v, err)
		}
		cfg.OTelEnabled = b
	}

	return loadPoolEnvVars(cfg)
}

func envInt(name string, minimum int, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < minimum {
		return fmt.Errorf("invalid %s value %q: must be an integer >= %d", name, v, minimum)
	}
	*dst = n
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", name, v, err)
	}
	if d < 0 {
		return fmt.Errorf("invalid %s value %q: must not be negative", name, v)
	}
	*dst = d
	return nil
}

// loadPoolEnvVars reads connection pool environment variables.
func loadPoolEnvVars(cfg *Config) error {
	if v := os.Getenv("POOL_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid POOL_MAX_CONNS value %q: must be a positive integer", v)
		}
		cfg.PoolMaxConns = int32(n)
	}
	if v := os.Getenv("POOL_MIN_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid POOL_MIN_CONNS value %q: must be a non-negative integer", v)
		}
		cfg.PoolMinConns = int32(n)
	}
	return envDuration("POOL_MAX_CONN_LIFETIME", &cfg.PoolMaxConnLifetime)
}

// applyOverrides applies CLI flag values on top of the env-loaded config.
func applyOverrides(cfg *Config, o Overrides) error {
	if o.Source != nil {
		cfg.Source = strings.ToLower(strings.TrimSpace(*o.Source))
	}
	if o.APIBaseURL != nil {
		cfg.APIBaseURL = *o.APIBaseURL
	}
	if o.APIToken != nil {
		cfg.APIToken = *o.APIToken
	}
	if o.DatabaseURL != nil {
		cfg.DatabaseURL = *o.DatabaseURL
	}
	if o.LogLevel != nil {
		level, err := parseLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if o.PageSize != nil {
		if *o.PageSize <= 0 {
			return fmt.Errorf("invalid --page-size value: must be a positive integer")
		}
		cfg.PageSize = *o.PageSize
	}
	if o.RequestTimeout != nil {
		cfg.RequestTimeout = *o.RequestTimeout
	}
	if o.NullLabel != nil {
		cfg.NullLabel = *o.NullLabel
	}
	if o.PolicyFile != nil {
		cfg.PolicyFile = *o.PolicyFile
	}
	if o.Transport != nil {
		cfg.Transport = *o.Transport
	}
	if o.HTTPAddr != nil {
		cfg.HTTPAddr = *o.HTTPAddr
	}
	if o.HTTPBearerToken != nil {
		cfg.HTTPBearerToken = *o.HTTPBearerToken
	}

	if err := applyPoolOverrides(cfg, o); err != nil {
		return err
	}

	cfg.AuditLog = o.AuditLog
	cfg.OTelEnabled = cfg.OTelEnabled || o.OTelEnabled

	return nil
}

// applyPoolOverrides applies connection pool CLI flag overrides.
func applyPoolOverrides(cfg *Config, o Overrides) error {
	if o.PoolMaxConns != nil {
		if *o.PoolMaxConns <= 0 {
			return fmt.Errorf("invalid --pool-max-conns value: must be a positive integer")
		}
		cfg.PoolMaxConns = *o.PoolMaxConns
	}
	if o.PoolMinConns != nil {
		if *o.PoolMinConns < 0 {
			return fmt.Errorf("invalid --pool-min-conns value: must be a non-negative integer")
		}
		cfg.PoolMinConns = *o.PoolMinConns
	}
	if o.PoolMaxConnLifetime != nil {
		cfg.PoolMaxConnLifetime = *o.PoolMaxConnLifetime
	}
	return nil
}

// validate checks cross-field constraints on the final config.
func validate(cfg *Config) error {
	switch cfg.Source {
	case SourceHTTP:
		if cfg.APIBaseURL == "" {
			return fmt.Errorf("API_BASE_URL is required when source is \"http\" (set via env var or --api-base-url flag)")
		}
		u, err := url.Parse(cfg.APIBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid API_BASE_URL value %q: must be an absolute http(s) URL", cfg.APIBaseURL)
		}
	case SourcePostgres:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when source is \"postgres\" (set via env var or --database-url flag)")
		}
	default:
		return fmt.Errorf("invalid SOURCE value %q: must be \"http\" or \"postgres\"", cfg.Source)
	}

	switch cfg.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("invalid TRANSPORT value %q: must be \"stdio\" or \"http\"", cfg.Transport)
	}

	if cfg.Transport == TransportHTTP && cfg.HTTPBearerToken == "" {
		return fmt.Errorf("HTTP_BEARER_TOKEN is required when transport is \"http\" (set via env var or --http-bearer-token flag)")
	}

	if cfg.RetryBaseDelay > cfg.RetryMaxDelay {
		return fmt.Errorf("RETRY_BASE_DELAY (%s) must not exceed RETRY_MAX_DELAY (%s)", cfg.RetryBaseDelay, cfg.RetryMaxDelay)
	}

	if cfg.PoolMinConns > cfg.PoolMaxConns {
		return fmt.Errorf("POOL_MIN_CONNS (%d) must not exceed POOL_MAX_CONNS (%d)", cfg.PoolMinConns, cfg.PoolMaxConns)
	}

	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}
