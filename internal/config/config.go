// Package config loads azsvc settings from the environment and the user
// profile.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/DevExpGBB/azsvc/internal/wait"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "AZSVC"

// DefaultEndpoint is used when neither the environment nor the profile
// names a management endpoint.
const DefaultEndpoint = "https://management.core.windows.net"

type Config struct {
	Endpoint       string `envconfig:"ENDPOINT" desc:"Management API endpoint"`
	SubscriptionID string `envconfig:"SUBSCRIPTION_ID" desc:"Subscription the service is published to"`
	BlobEndpoint   string `envconfig:"BLOB_ENDPOINT" desc:"Blob endpoint pattern, %s is replaced by the storage account"`
	RuntimeBaseURL string `envconfig:"RUNTIME_BASE_URL" default:"https://nodertncu.blob.core.windows.net" desc:"Where pinned role runtimes are downloaded from"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPrettyPrint bool   `envconfig:"LOG_PRETTY" default:"true"`

	PollInterval    time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
	PollMaxInterval time.Duration `envconfig:"POLL_MAX_INTERVAL" default:"30s"`
	PollTimeout     time.Duration `envconfig:"POLL_TIMEOUT" default:"15m"`
	PollMaxAttempts int           `envconfig:"POLL_MAX_ATTEMPTS" default:"0"`
	HTTPTimeout     time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
}

// Load reads the configuration from AZSVC_* environment variables.
func Load() (Config, error) {
	var c Config
	err := envconfig.Process(EnvPrefix, &c)
	return c, err
}

// MustParse is Load that prints usage and exits on error.
func MustParse() Config {
	c, err := Load()
	if err != nil {
		_ = envconfig.Usage(EnvPrefix, &c)
		log.Fatal().Msg(err.Error())
	}
	return c
}

// ApplyProfile fills settings left empty by the environment from p.
func (c *Config) ApplyProfile(p *Profile) {
	if p != nil {
		if c.Endpoint == "" {
			c.Endpoint = p.Endpoint
		}
		if c.SubscriptionID == "" {
			c.SubscriptionID = p.SubscriptionID
		}
		if c.BlobEndpoint == "" {
			c.BlobEndpoint = p.BlobEndpoint
		}
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.BlobEndpoint == "" {
		c.BlobEndpoint = "https://%s.blob.core.windows.net"
	}
}

// WaitPolicy returns the poll policy for long-running operations.
func (c Config) WaitPolicy(logger zerolog.Logger) wait.Policy {
	p := wait.DefaultPolicy()
	p.Interval = c.PollInterval
	p.MaxInterval = c.PollMaxInterval
	p.Timeout = c.PollTimeout
	p.MaxAttempts = c.PollMaxAttempts
	p.Log = logger
	return p
}

// NewLogger builds the diagnostic logger. Pretty output goes through a
// console writer on stderr.
func NewLogger(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}
