// Package config provides configuration structures and loading logic for the router.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/polisai/polis-chain/internal/governance"
	"github.com/polisai/polis-chain/pkg/domain"
	"github.com/polisai/polis-chain/pkg/engine"
	"github.com/polisai/polis-chain/pkg/jobsink"
	"github.com/polisai/polis-chain/pkg/storage"
)

// Counter backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Environment variables overriding file settings.
const (
	EnvListen       = "POLIS_CHAIN_LISTEN"
	EnvFanOutScale  = "POLIS_CHAIN_FAN_OUT_SCALE"
	EnvRedisAddr    = "POLIS_CHAIN_REDIS_ADDR"
	EnvLogLevel     = "POLIS_CHAIN_LOG_LEVEL"
	EnvOTLPEndpoint = "POLIS_CHAIN_OTLP_ENDPOINT"
)

// Config holds the global configuration for the router.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Router    RouterConfig    `yaml:"router"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Counter   CounterConfig   `yaml:"counter"`
	Job       JobConfig       `yaml:"job"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	ListenAddress   string        `yaml:"listen_address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RouterConfig holds the shape of the chain.
type RouterConfig struct {
	FanOutScale       int        `yaml:"fan_out_scale"`
	FanOutDestination string     `yaml:"fan_out_destination"`
	Delays            StepDelays `yaml:"delays"`
}

// StepDelays holds the simulated work per step.
type StepDelays struct {
	StepOne   time.Duration `yaml:"step_one"`
	StepTwo   time.Duration `yaml:"step_two"`
	StepThree time.Duration `yaml:"step_three"`
}

// Map returns the delays keyed by step.
func (d StepDelays) Map() map[domain.Step]time.Duration {
	return map[domain.Step]time.Duration{
		domain.StepOne:   d.StepOne,
		domain.StepTwo:   d.StepTwo,
		domain.StepThree: d.StepThree,
	}
}

// DispatchConfig holds configuration for outbound posts.
type DispatchConfig struct {
	MaxConcurrency int           `yaml:"max_concurrency"`
	Timeout        time.Duration `yaml:"timeout"`
	Breaker        BreakerConfig `yaml:"breaker"`
}

// BreakerConfig holds the per-destination circuit breaker settings.
type BreakerConfig struct {
	MaxFailures    int           `yaml:"max_failures"`
	Cooldown       time.Duration `yaml:"cooldown"`
	HalfOpenProbes int           `yaml:"half_open_probes"`
}

// Governance converts the settings into a governance.BreakerConfig.
func (b BreakerConfig) Governance() governance.BreakerConfig {
	return governance.BreakerConfig{
		MaxFailures:    b.MaxFailures,
		Cooldown:       b.Cooldown,
		HalfOpenProbes: b.HalfOpenProbes,
	}
}

// CounterConfig selects where the scatter-gather count lives.
type CounterConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds the Redis counter connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// JobConfig holds configuration for job mode.
type JobConfig struct {
	TriggerLocation string `yaml:"trigger_location"`
	EnvFlag         string `yaml:"env_flag"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	ServiceName  string `yaml:"service_name"`
	Environment  string `yaml:"environment"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	breaker := governance.DefaultBreakerConfig()
	return &Config{
		Server: ServerConfig{
			ListenAddress:   "127.0.0.1:8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Router: RouterConfig{
			FanOutScale:       engine.DefaultFanOutScale,
			FanOutDestination: engine.DefaultFanOutDestination,
			Delays: StepDelays{
				StepOne:   engine.DefaultStepOneDelay,
				StepTwo:   engine.DefaultStepTwoDelay,
				StepThree: engine.DefaultStepThreeDelay,
			},
		},
		Dispatch: DispatchConfig{
			MaxConcurrency: engine.DefaultMaxConcurrency,
			Timeout:        governance.DefaultDeliveryTimeout,
			Breaker: BreakerConfig{
				MaxFailures:    breaker.MaxFailures,
				Cooldown:       breaker.Cooldown,
				HalfOpenProbes: breaker.HalfOpenProbes,
			},
		},
		Counter: CounterConfig{
			Backend: BackendMemory,
			Redis:   RedisConfig{Key: storage.DefaultCounterKey},
		},
		Job: JobConfig{
			TriggerLocation: jobsink.DefaultLocation,
			EnvFlag:         jobsink.DefaultEnvFlag,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "polis-chain",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a file on top of the defaults, expands
// environment references in it and applies environment variable overrides.
// An empty path loads the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is controlled by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := Parse([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML into cfg, keeping values the document does not set.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConfigInvalid, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv(EnvListen); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv(EnvFanOutScale); val != "" {
		scale, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", domain.ErrConfigInvalid, EnvFanOutScale, val)
		}
		cfg.Router.FanOutScale = scale
	}
	if val := os.Getenv(EnvRedisAddr); val != "" {
		cfg.Counter.Backend = BackendRedis
		cfg.Counter.Redis.Addr = val
	}
	if val := os.Getenv(EnvLogLevel); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv(EnvOTLPEndpoint); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	return nil
}

// Validate performs validation of the entire configuration.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if err := c.Router.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("router: %w", err))
	}
	if err := c.Dispatch.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("dispatch: %w", err))
	}
	if err := c.Counter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("counter: %w", err))
	}
	if err := c.Job.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("job: %w", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrConfigInvalid, errors.Join(errs...))
	}
	return nil
}

// Validate performs validation of server configuration.
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return errors.New("listen_address is required")
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 || c.ShutdownTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// Validate performs validation of router configuration.
func (c *RouterConfig) Validate() error {
	if c.FanOutScale < 1 {
		return fmt.Errorf("fan_out_scale must be at least 1, got %d", c.FanOutScale)
	}
	if c.FanOutDestination != "" {
		u, err := url.Parse(c.FanOutDestination)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("fan_out_destination %q is not an absolute url", c.FanOutDestination)
		}
	}
	if c.Delays.StepOne < 0 || c.Delays.StepTwo < 0 || c.Delays.StepThree < 0 {
		return errors.New("step delays must not be negative")
	}
	return nil
}

// Validate performs validation of dispatch configuration.
func (c *DispatchConfig) Validate() error {
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.Breaker.MaxFailures < 0 {
		return errors.New("breaker.max_failures must not be negative")
	}
	return nil
}

// Validate performs validation of the counter backend.
func (c *CounterConfig) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case "", BackendMemory:
		c.Backend = BackendMemory
	case BackendRedis:
		c.Backend = BackendRedis
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown backend %q, supported backends: memory, redis", c.Backend)
	}
	if c.Redis.Key == "" {
		c.Redis.Key = storage.DefaultCounterKey
	}
	return nil
}

// Validate performs validation of job configuration.
func (c *JobConfig) Validate() error {
	if c.TriggerLocation == "" {
		c.TriggerLocation = jobsink.DefaultLocation
	}
	if c.EnvFlag == "" {
		c.EnvFlag = jobsink.DefaultEnvFlag
	}
	return nil
}

// Validate performs validation of logging configuration.
func (c *LoggingConfig) Validate() error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}

	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level
		return nil
	default:
		return fmt.Errorf("invalid log level %q, supported levels: debug, info, warn, error", c.Level)
	}
}

// CheckReload reports whether next may replace current in a running process.
// Only step delays and the log level are applied live; settings the gather
// counter or open connections depend on are rejected.
func CheckReload(current, next *Config) error {
	switch {
	case current.Router.FanOutScale != next.Router.FanOutScale:
		return fmt.Errorf("%w: fan_out_scale cannot change at runtime (%d -> %d)",
			domain.ErrConfigInvalid, current.Router.FanOutScale, next.Router.FanOutScale)
	case current.Counter.Backend != next.Counter.Backend || current.Counter.Redis != next.Counter.Redis:
		return fmt.Errorf("%w: counter settings cannot change at runtime", domain.ErrConfigInvalid)
	case current.Server.ListenAddress != next.Server.ListenAddress:
		return fmt.Errorf("%w: listen_address cannot change at runtime", domain.ErrConfigInvalid)
	}
	return nil
}
