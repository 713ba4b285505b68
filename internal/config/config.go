// Package config loads nrdata-dl settings from the environment, an optional
// .env file and command-line flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/mrioqueiroz/nrdata-dl/pkg/logging"
)

// Environment keys.
const (
	KeyAPIURL              = "API_URL"
	KeyAPIKey              = "API_KEY"
	KeyAPIKeyHeader        = "API_KEY_HEADER"
	KeyAPIKeyQueryParam    = "API_KEY_QUERY_PARAM"
	KeyLimitPerMinute      = "LIMIT_PER_MINUTE"
	KeyMarginOfError       = "MARGIN_OF_ERROR"
	KeyInputFile           = "INPUT_FILE"
	KeyOutputFolder        = "OUTPUT_FOLDER"
	KeyMaximumAge          = "MAXIMUM_AGE"
	KeyConcurrency         = "CONCURRENCY"
	KeyMaxAttempts         = "MAX_ATTEMPTS"
	KeyMaxRateLimitRetries = "MAX_RATE_LIMIT_RETRIES"
	KeyInitialBackoff      = "INITIAL_BACKOFF"
	KeyMaxBackoff          = "MAX_BACKOFF"
	KeyRequestTimeout      = "REQUEST_TIMEOUT"
	KeyRedisURL            = "REDIS_URL"
	KeyDefaultCustomer     = "DEFAULT_CUSTOMER"
	KeyLogLevel            = "LOG_LEVEL"
	KeyLogPretty           = "LOG_PRETTY"
	KeyUserAgent           = "USER_AGENT"
	KeyMetricsTextfile     = "METRICS_TEXTFILE"
)

// Config holds every setting of a run.
type Config struct {
	APIURL           string
	APIKey           string
	APIKeyHeader     string
	APIKeyQueryParam string
	UserAgent        string

	// LimitPerMinute requests are allowed per minute; MarginOfError is added
	// between consecutive requests.
	LimitPerMinute int
	MarginOfError  time.Duration

	InputFile       string
	OutputFolder    string
	DefaultCustomer string

	// MaximumAge is how long downloaded payloads are reused from the cache.
	MaximumAge time.Duration
	RedisURL   string

	Concurrency         int
	MaxAttempts         int
	MaxRateLimitRetries int
	InitialBackoff      time.Duration
	MaxBackoff          time.Duration
	RequestTimeout      time.Duration

	LogLevel        string
	LogPretty       bool
	MetricsTextfile bool
}

// setDefaults registers the default of every key.
func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyAPIKeyHeader, "X-API-Key")
	v.SetDefault(KeyLimitPerMinute, 3)
	v.SetDefault(KeyMarginOfError, 0)
	v.SetDefault(KeyInputFile, "./input.txt")
	v.SetDefault(KeyOutputFolder, "./downloads/")
	v.SetDefault(KeyMaximumAge, 30)
	v.SetDefault(KeyConcurrency, 4)
	v.SetDefault(KeyMaxAttempts, 3)
	v.SetDefault(KeyMaxRateLimitRetries, 3)
	v.SetDefault(KeyInitialBackoff, "1s")
	v.SetDefault(KeyMaxBackoff, "30s")
	v.SetDefault(KeyRequestTimeout, "30s")
	v.SetDefault(KeyDefaultCustomer, "default")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogPretty, false)
	v.SetDefault(KeyUserAgent, "nrdata-dl/1.0")
	v.SetDefault(KeyMetricsTextfile, true)
}

// Load reads the configuration. envFile is loaded first when it exists; an
// explicitly named file that is missing is an error, the default ".env" is
// optional. Variables already in the environment win over the file. bind,
// when non-nil, attaches command-line flags to keys and takes precedence over
// both.
func Load(envFile string, bind func(*viper.Viper) error) (*Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if bind != nil {
		if err := bind(v); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	cfg := &Config{
		APIURL:              v.GetString(KeyAPIURL),
		APIKey:              v.GetString(KeyAPIKey),
		APIKeyHeader:        v.GetString(KeyAPIKeyHeader),
		APIKeyQueryParam:    v.GetString(KeyAPIKeyQueryParam),
		UserAgent:           v.GetString(KeyUserAgent),
		LimitPerMinute:      v.GetInt(KeyLimitPerMinute),
		MarginOfError:       time.Duration(v.GetFloat64(KeyMarginOfError) * float64(time.Second)),
		InputFile:           v.GetString(KeyInputFile),
		OutputFolder:        v.GetString(KeyOutputFolder),
		DefaultCustomer:     v.GetString(KeyDefaultCustomer),
		MaximumAge:          time.Duration(v.GetInt(KeyMaximumAge)) * 24 * time.Hour,
		RedisURL:            v.GetString(KeyRedisURL),
		Concurrency:         v.GetInt(KeyConcurrency),
		MaxAttempts:         v.GetInt(KeyMaxAttempts),
		MaxRateLimitRetries: v.GetInt(KeyMaxRateLimitRetries),
		InitialBackoff:      v.GetDuration(KeyInitialBackoff),
		MaxBackoff:          v.GetDuration(KeyMaxBackoff),
		RequestTimeout:      v.GetDuration(KeyRequestTimeout),
		LogLevel:            v.GetString(KeyLogLevel),
		LogPretty:           v.GetBool(KeyLogPretty),
		MetricsTextfile:     v.GetBool(KeyMetricsTextfile),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultEnvFile is loaded when no file is named.
const DefaultEnvFile = ".env"

func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.APIURL == "" {
		errs = append(errs, fmt.Errorf("%s is required", KeyAPIURL))
	} else if u, err := url.Parse(c.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("%s must be an http(s) URL (got %q)", KeyAPIURL, c.APIURL))
	}
	if c.LimitPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0 (got %d)", KeyLimitPerMinute, c.LimitPerMinute))
	}
	if c.MarginOfError < 0 {
		errs = append(errs, fmt.Errorf("%s must be >= 0", KeyMarginOfError))
	}
	if c.MaximumAge <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0 days", KeyMaximumAge))
	}
	if c.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0 (got %d)", KeyConcurrency, c.Concurrency))
	}
	if c.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0 (got %d)", KeyMaxAttempts, c.MaxAttempts))
	}
	if c.MaxRateLimitRetries < 0 {
		errs = append(errs, fmt.Errorf("%s must be >= 0 (got %d)", KeyMaxRateLimitRetries, c.MaxRateLimitRetries))
	}
	if c.InitialBackoff < 0 || c.MaxBackoff < 0 {
		errs = append(errs, fmt.Errorf("backoff durations must be >= 0"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0", KeyRequestTimeout))
	}
	if c.InputFile == "" {
		errs = append(errs, fmt.Errorf("%s is required", KeyInputFile))
	}
	if c.OutputFolder == "" {
		errs = append(errs, fmt.Errorf("%s is required", KeyOutputFolder))
	}
	if c.DefaultCustomer == "" {
		errs = append(errs, fmt.Errorf("%s must not be empty", KeyDefaultCustomer))
	}
	if !logging.ValidLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("%s %q is not a valid level", KeyLogLevel, c.LogLevel))
	}

	return errors.Join(errs...)
}
