package config

import (
	"time"

	"github.com/mrioqueiroz/nrdata-dl/pkg/cache"
	"github.com/mrioqueiroz/nrdata-dl/pkg/client"
	"github.com/mrioqueiroz/nrdata-dl/pkg/logging"
	"github.com/mrioqueiroz/nrdata-dl/pkg/ratelimit"
)

// RateLimit returns the gate configuration: LimitPerMinute per minute with
// MarginOfError between requests.
func (c *Config) RateLimit() ratelimit.Config {
	return ratelimit.Config{
		Limit:    c.LimitPerMinute,
		Interval: time.Minute,
		Margin:   c.MarginOfError,
	}
}

// Client returns the API client configuration.
func (c *Config) Client() client.Config {
	cfg := client.DefaultConfig(c.APIURL)
	cfg.UserAgent = c.UserAgent
	cfg.Timeout = c.RequestTimeout
	cfg.Retry.MaxAttempts = c.MaxAttempts
	cfg.Retry.MaxRateLimitRetries = c.MaxRateLimitRetries
	cfg.Retry.InitialBackoff = c.InitialBackoff
	cfg.Retry.MaxBackoff = c.MaxBackoff
	if cfg.Retry.RateLimitBackoff > c.MaxBackoff {
		cfg.Retry.RateLimitBackoff = c.MaxBackoff
	}
	return cfg
}

// Credentials returns the API credentials.
func (c *Config) Credentials() client.Credentials {
	return client.Credentials{
		APIKey:     c.APIKey,
		Header:     c.APIKeyHeader,
		QueryParam: c.APIKeyQueryParam,
	}
}

// Cache returns the payload cache lifetimes.
func (c *Config) Cache() cache.Config {
	return cache.Config{
		MaxAge:   c.MaximumAge,
		FreshFor: c.MaximumAge,
	}
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}
