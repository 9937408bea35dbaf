package flags

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// DefaultBaseURL is the hosted flags service.
const DefaultBaseURL = "https://api.flags.gg"

// Config holds client configuration. It is copied into the Client by New
// and never changes afterwards.
type Config struct {
	BaseURL       string `env:"BASE_URL" envDefault:"https://api.flags.gg"`
	ProjectID     string `env:"PROJECT_ID"`
	AgentID       string `env:"AGENT_ID"`
	EnvironmentID string `env:"ENVIRONMENT_ID"`

	// CacheTTL is how long a fetched flag counts as fresh unless the server
	// suggests its own interval.
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"60s"`
	// FetchTimeout bounds a single remote fetch.
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"10s"`
	// OverridePrefix is prepended to flag names to form override variables.
	OverridePrefix string `env:"OVERRIDE_PREFIX" envDefault:"FLAGS_"`
	// RedisURL, when set, selects the persistent Redis cache.
	RedisURL string `env:"REDIS_URL"`

	CircuitBreaker CircuitBreakerConfig `envPrefix:"BREAKER_"`
}

// ConfigEnvPrefix prefixes every variable read by LoadConfig.
const ConfigEnvPrefix = "FLAGSGG_"

// DefaultConfig returns a configuration with every default filled in and no
// credentials.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		CacheTTL:       60 * time.Second,
		FetchTimeout:   10 * time.Second,
		OverridePrefix: DefaultOverridePrefix,
		CircuitBreaker: DefaultCircuitBreakerConfig(),
	}
}

// LoadConfig reads configuration from FLAGSGG_* environment variables.
// Any files given are loaded as .env files first; variables already set in
// the environment win.
func LoadConfig(files ...string) (Config, error) {
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Config{}, newFlagError(ErrorTypeValidation, "load env file", err)
		}
	}

	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: ConfigEnvPrefix})
	if err != nil {
		return Config{}, newFlagError(ErrorTypeValidation, "parse environment", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// withDefaults fills zero values so a partially populated Config works.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = def.CacheTTL
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = def.FetchTimeout
	}
	if c.OverridePrefix == "" {
		c.OverridePrefix = def.OverridePrefix
	}
	c.CircuitBreaker = c.CircuitBreaker.withDefaults()
	return c
}

// Auth returns the credentials part of the configuration.
func (c Config) Auth() Auth {
	return Auth{
		ProjectID:     c.ProjectID,
		AgentID:       c.AgentID,
		EnvironmentID: c.EnvironmentID,
	}
}

// Validate checks the configuration. Credentials are not required here;
// New asks for them only when the built-in HTTP fetcher is used.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, validation.By(validateBaseURL)),
		validation.Field(&c.CacheTTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.FetchTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.OverridePrefix, validation.Required),
		validation.Field(&c.RedisURL, validation.By(validateRedisURL)),
		// CircuitBreakerConfig validates itself.
		validation.Field(&c.CircuitBreaker),
	)
	if err != nil {
		return newFlagError(ErrorTypeValidation, "invalid configuration", err)
	}
	return nil
}

// Validate checks the breaker settings.
func (cfg CircuitBreakerConfig) Validate() error {
	return validation.ValidateStruct(&cfg,
		validation.Field(&cfg.FailureThreshold, validation.Required, validation.Min(1)),
		validation.Field(&cfg.Cooldown, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&cfg.MaxCooldown, validation.Required, validation.Min(cfg.Cooldown).Error("must not be shorter than cooldown")),
		validation.Field(&cfg.CooldownMultiplier, validation.Required, validation.Min(1.0)),
		validation.Field(&cfg.CooldownStrategy, validation.In("exponential", "constant")),
	)
}

// validateAuth is applied by New when the HTTP fetcher is in use.
func (c Config) validateAuth() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.ProjectID, validation.Required),
		validation.Field(&c.AgentID, validation.Required),
		validation.Field(&c.EnvironmentID, validation.Required),
	)
	if err != nil {
		return newFlagError(ErrorTypeValidation, "credentials required for the remote service", err)
	}
	return nil
}

func validateBaseURL(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func validateRedisURL(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	_, err := redis.ParseURL(s)
	return err
}
