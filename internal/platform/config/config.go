package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultBraceletsCollection  = "pulseras"
	defaultCharmsCollection     = "colgantes-y-dijes"
	defaultCatalogPageSize      = 50
	defaultShopTimeout          = 10 * time.Second
	defaultCapacity             = 16
	defaultMaxCapacity          = 32
	defaultCurrency             = "HNL"
	defaultRedirectPath         = "/cart"
	defaultRedirectDelay        = 1500 * time.Millisecond
	defaultSessionTTL           = 12 * time.Hour
	defaultSessionSweepInterval = time.Hour
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Shop          ShopConfig
	Builder       BuilderConfig
	Idempotency   IdempotencyConfig
	Observability ObservabilityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// ShopConfig points the service at the storefront that owns the catalog
// and the cart.
type ShopConfig struct {
	BaseURL             string
	BraceletsCollection string
	CharmsCollection    string
	CatalogPageSize     int
	RequestTimeout      time.Duration
}

// BuilderConfig controls composition defaults and session retention.
type BuilderConfig struct {
	DefaultCapacity      int
	MaxCapacity          int
	Currency             string
	RedirectPath         string
	RedirectDelay        time.Duration
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// ObservabilityConfig carries settings for tracing and log correlation.
type ObservabilityConfig struct {
	ProjectID string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// and environment variables.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "BUILDER_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "BUILDER_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "BUILDER_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "BUILDER_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Shop: ShopConfig{
			BaseURL:             strings.TrimRight(stringWithDefault(lookup, "BUILDER_SHOP_BASE_URL", ""), "/"),
			BraceletsCollection: stringWithDefault(lookup, "BUILDER_SHOP_BRACELETS_COLLECTION", defaultBraceletsCollection),
			CharmsCollection:    stringWithDefault(lookup, "BUILDER_SHOP_CHARMS_COLLECTION", defaultCharmsCollection),
			CatalogPageSize:     intWithDefault(lookup, "BUILDER_SHOP_CATALOG_PAGE_SIZE", defaultCatalogPageSize),
			RequestTimeout:      durationWithDefault(lookup, "BUILDER_SHOP_REQUEST_TIMEOUT", defaultShopTimeout),
		},
		Builder: BuilderConfig{
			DefaultCapacity:      intWithDefault(lookup, "BUILDER_DEFAULT_CAPACITY", defaultCapacity),
			MaxCapacity:          intWithDefault(lookup, "BUILDER_MAX_CAPACITY", defaultMaxCapacity),
			Currency:             strings.ToUpper(stringWithDefault(lookup, "BUILDER_CURRENCY", defaultCurrency)),
			RedirectPath:         stringWithDefault(lookup, "BUILDER_REDIRECT_PATH", defaultRedirectPath),
			RedirectDelay:        durationWithDefault(lookup, "BUILDER_REDIRECT_DELAY", defaultRedirectDelay),
			SessionTTL:           durationWithDefault(lookup, "BUILDER_SESSION_TTL", defaultSessionTTL),
			SessionSweepInterval: durationWithDefault(lookup, "BUILDER_SESSION_SWEEP_INTERVAL", defaultSessionSweepInterval),
		},
		Idempotency: IdempotencyConfig{
			Header:           stringWithDefault(lookup, "BUILDER_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "BUILDER_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "BUILDER_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "BUILDER_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
		Observability: ObservabilityConfig{
			ProjectID: stringWithDefault(lookup, "BUILDER_TRACE_PROJECT_ID", ""),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Shop.BaseURL == "" {
		missing = append(missing, "Shop.BaseURL")
	}
	if cfg.Shop.BraceletsCollection == "" {
		missing = append(missing, "Shop.BraceletsCollection")
	}
	if cfg.Shop.CharmsCollection == "" {
		missing = append(missing, "Shop.CharmsCollection")
	}
	if cfg.Shop.CatalogPageSize <= 0 {
		missing = append(missing, "Shop.CatalogPageSize")
	}
	if cfg.Builder.DefaultCapacity < 1 {
		missing = append(missing, "Builder.DefaultCapacity")
	}
	if cfg.Builder.MaxCapacity < cfg.Builder.DefaultCapacity {
		missing = append(missing, "Builder.MaxCapacity")
	}
	if len(cfg.Builder.Currency) != 3 {
		missing = append(missing, "Builder.Currency")
	}
	if cfg.Builder.SessionTTL <= 0 {
		missing = append(missing, "Builder.SessionTTL")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		missing = append(missing, "Idempotency.CleanupInterval")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		missing = append(missing, "Idempotency.CleanupBatchSize")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
