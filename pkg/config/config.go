package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/gatekeeper/pkg/auth"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/ratelimit"
)

// EnvPrefix is prepended to every variable name
const EnvPrefix = "GATEKEEPER_"

// Rate limit store backends
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Token         TokenConfig     `envPrefix:"TOKEN_"`
	Redis         RedisConfig     `envPrefix:"REDIS_"`
	RateLimit     RateLimitConfig `envPrefix:"RATELIMIT_"`
	Routes        RoutesConfig    `envPrefix:"ROUTES_"`
	Audit         AuditConfig     `envPrefix:"AUDIT_"`
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `env:"HOST"             envDefault:"0.0.0.0"`
	Port            string        `env:"PORT"             envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT"     envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT"    envDefault:"15s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT"     envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// RequestTimeout bounds the whole request, gate and upstream included
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	MaxBodyBytes   int64         `env:"MAX_BODY_BYTES"  envDefault:"1048576"`

	// UpstreamURL is the backend admitted requests are proxied to. When empty
	// admitted requests get an echo of their identity (development).
	UpstreamURL string `env:"UPSTREAM_URL"`

	// TrustedProxies lists CIDRs (or bare addresses) of the load balancers in
	// front of the gate. Forwarding headers from anyone else are ignored.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `env:"HEALTH_PORT" envDefault:"9090"`
}

// TokenConfig holds session token settings
type TokenConfig struct {
	Secret string        `env:"SECRET"`
	Issuer string        `env:"ISSUER" envDefault:"gatekeeper"`
	TTL    time.Duration `env:"TTL"    envDefault:"24h"`
}

// RedisConfig holds the Redis connection used by the redis rate limit store
type RedisConfig struct {
	Addr        string        `env:"ADDR"         envDefault:"localhost:6379"`
	Password    string        `env:"PASSWORD"`
	DB          int           `env:"DB"           envDefault:"0"`
	PoolSize    int           `env:"POOL_SIZE"    envDefault:"10"`
	DialTimeout time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
}

// RateLimitConfig holds rate limiter settings
type RateLimitConfig struct {
	Store string `env:"STORE" envDefault:"memory"`
	// FailClosed rejects requests with 503 when the store is unreachable
	FailClosed    bool   `env:"FAIL_CLOSED"     envDefault:"false"`
	MemoryMaxKeys int    `env:"MEMORY_MAX_KEYS" envDefault:"100000"`
	SweepSchedule string `env:"SWEEP_SCHEDULE"  envDefault:"@every 1m"`

	// Policies overrides or adds policies, e.g.
	// "login=10/15m,otp=3/10m/field:phone,search=30/1m/subject"
	Policies map[string]string `env:"POLICIES" envKeyValSeparator:"="`
}

// RoutesConfig points at the route table
type RoutesConfig struct {
	// File is a YAML route table; empty uses the built-in table
	File string `env:"FILE"`
}

// AuditConfig selects where rejection and operator audit events go
type AuditConfig struct {
	// Log writes audit events to the application log
	Log bool `env:"LOG" envDefault:"true"`
	// Dir enables the JSON lines file sink when set
	Dir      string `env:"DIR"`
	MaxSize  int64  `env:"MAX_SIZE"  envDefault:"104857600"`
	MaxFiles int    `env:"MAX_FILES" envDefault:"10"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`

	OTelEnabled        bool    `env:"OTEL_ENABLED"         envDefault:"false"`
	OTelEndpoint       string  `env:"OTEL_ENDPOINT"        envDefault:"localhost:4317"`
	OTelServiceName    string  `env:"OTEL_SERVICE_NAME"    envDefault:"gatekeeper"`
	OTelServiceVersion string  `env:"OTEL_SERVICE_VERSION" envDefault:"dev"`
	OTelInsecure       bool    `env:"OTEL_INSECURE"        envDefault:"true"` // Use insecure gRPC connection
	OTelSampleRatio    float64 `env:"OTEL_SAMPLE_RATIO"    envDefault:"1"`
}

// LoadConfig loads configuration from environment variables. Values from the
// given dotenv files (or ./.env when none are given) fill in variables that
// are not already set; a missing file is not an error.
func LoadConfig(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}
	if c.Server.UpstreamURL != "" {
		u, err := url.Parse(c.Server.UpstreamURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid upstream URL: %s (must be an absolute http or https URL)", c.Server.UpstreamURL)
		}
	}

	if _, err := httputil.ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		return err
	}

	if len(c.Token.Secret) < auth.MinSecretLength {
		return fmt.Errorf("token secret must be at least %d bytes", auth.MinSecretLength)
	}
	if c.Token.TTL < auth.MinTokenTTL {
		return fmt.Errorf("token TTL must be at least %s", auth.MinTokenTTL)
	}

	switch c.RateLimit.Store {
	case StoreMemory:
		if c.RateLimit.MemoryMaxKeys <= 0 {
			return fmt.Errorf("memory store max keys must be positive")
		}
		if _, err := cron.ParseStandard(c.RateLimit.SweepSchedule); err != nil {
			return fmt.Errorf("invalid sweep schedule %q: %w", c.RateLimit.SweepSchedule, err)
		}
	case StoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required for redis rate limit store")
		}
	default:
		return fmt.Errorf("invalid rate limit store: %s (must be memory or redis)", c.RateLimit.Store)
	}
	if _, err := c.RateLimit.BuildPolicies(); err != nil {
		return err
	}

	if c.Audit.Dir != "" && (c.Audit.MaxSize <= 0 || c.Audit.MaxFiles <= 0) {
		return fmt.Errorf("audit max size and max files must be positive")
	}

	if _, err := observability.ParseLogLevel(c.Observability.LogLevel); err != nil {
		return err
	}
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
		return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
	}

	return nil
}

// Level returns the parsed log level, info when unset or invalid
func (o ObservabilityConfig) Level() observability.LogLevel {
	level, _ := observability.ParseLogLevel(o.LogLevel)
	return level
}

// BuildPolicies returns the default policies with the configured overrides
// applied. Overrides are "max/window" or "max/window/key".
func (r RateLimitConfig) BuildPolicies() ([]ratelimit.Policy, error) {
	policies := ratelimit.DefaultPolicies()
	index := make(map[string]int, len(policies))
	for i, p := range policies {
		index[p.Name] = i
	}

	names := make([]string, 0, len(r.Policies))
	for name := range r.Policies {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, raw := range names {
		name, spec := strings.TrimSpace(raw), r.Policies[raw]
		p, err := parsePolicy(name, spec)
		if err != nil {
			return nil, err
		}
		if i, ok := index[name]; ok {
			if strings.Count(spec, "/") < 2 {
				p.Key = policies[i].Key
			}
			policies[i] = p
			continue
		}
		index[name] = len(policies)
		policies = append(policies, p)
	}
	return policies, nil
}

func parsePolicy(name, spec string) (ratelimit.Policy, error) {
	parts := strings.SplitN(strings.TrimSpace(spec), "/", 3)
	if len(parts) < 2 {
		return ratelimit.Policy{}, fmt.Errorf("policy %s: expected max/window[/key], got %q", name, spec)
	}

	limit, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return ratelimit.Policy{}, fmt.Errorf("policy %s: invalid max %q", name, parts[0])
	}
	window, err := time.ParseDuration(strings.TrimSpace(parts[1]))
	if err != nil {
		return ratelimit.Policy{}, fmt.Errorf("policy %s: invalid window %q", name, parts[1])
	}
	key := ratelimit.ByClientIP
	if len(parts) == 3 {
		if key, err = ratelimit.ParseKeyStrategy(parts[2]); err != nil {
			return ratelimit.Policy{}, fmt.Errorf("policy %s: %w", name, err)
		}
	}

	p := ratelimit.Policy{Name: name, Window: window, Max: limit, Key: key}
	if err := p.Validate(); err != nil {
		return ratelimit.Policy{}, err
	}
	return p, nil
}
