package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/organization"
)

// EnvPrefix is prepended to every environment variable, e.g.
// IDENTITY_DATABASE_URL or IDENTITY_INVITATION_TTL.
const EnvPrefix = "IDENTITY"

// Config holds the application configuration
type Config struct {
	// Database connection string (DSN)
	DatabaseURL string

	// Server bind address (host:port)
	ServerAddr string

	// Maximum database connection pool size
	MaxDBConnections int

	// Enable debug logging
	Debug bool

	Invitation InvitationConfig
	Roles      RolesConfig
	Outbox     OutboxConfig
	Authz      AuthzConfig
	RateLimit  RateLimitConfig
	Telemetry  TelemetryConfig
}

// InvitationConfig controls invitation tokens and validity.
type InvitationConfig struct {
	TTL        time.Duration
	TokenBytes int
}

type RolesConfig struct {
	// CaseInsensitiveNames makes "admin" and "Admin" collide.
	CaseInsensitiveNames bool
}

// OutboxConfig tunes the relay that re-delivers undispatched events.
type OutboxConfig struct {
	Interval  time.Duration
	BatchSize int
	// MaxAttempts is how many failed deliveries an event gets before the
	// relay stops picking it up.
	MaxAttempts int
}

type AuthzConfig struct {
	// CacheSize bounds the number of per-organization enforcers kept.
	CacheSize int
}

// RateLimitConfig applies to invitation accept and reject requests, per
// caller.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

type TelemetryConfig struct {
	// OTLPEndpoint enables trace export when set (host:port).
	OTLPEndpoint string
	ServiceName  string
	Insecure     bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "identity.db")
	v.SetDefault("server_addr", "localhost:8080")
	v.SetDefault("max_db_connections", 25)
	v.SetDefault("debug", false)
	v.SetDefault("invitation.ttl", organization.DefaultInvitationTTL)
	v.SetDefault("invitation.token_bytes", organization.DefaultTokenBytes)
	v.SetDefault("roles.case_insensitive_names", false)
	v.SetDefault("outbox.interval", 5*time.Second)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.max_attempts", 10)
	v.SetDefault("authz.cache_size", 256)
	v.SetDefault("rate_limit.rps", 5.0)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.service_name", "identityapi")
	v.SetDefault("otel.insecure", true)
}

// Load reads configuration from the global viper instance: defaults, the
// config file if one was set, then IDENTITY_ environment variables.
func Load() (*Config, error) {
	v := viper.GetViper()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		DatabaseURL:      v.GetString("database_url"),
		ServerAddr:       v.GetString("server_addr"),
		MaxDBConnections: v.GetInt("max_db_connections"),
		Debug:            v.GetBool("debug"),
		Invitation: InvitationConfig{
			TTL:        v.GetDuration("invitation.ttl"),
			TokenBytes: v.GetInt("invitation.token_bytes"),
		},
		Roles: RolesConfig{
			CaseInsensitiveNames: v.GetBool("roles.case_insensitive_names"),
		},
		Outbox: OutboxConfig{
			Interval:    v.GetDuration("outbox.interval"),
			BatchSize:   v.GetInt("outbox.batch_size"),
			MaxAttempts: v.GetInt("outbox.max_attempts"),
		},
		Authz: AuthzConfig{
			CacheSize: v.GetInt("authz.cache_size"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: v.GetFloat64("rate_limit.rps"),
			Burst:             v.GetInt("rate_limit.burst"),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: v.GetString("otel.endpoint"),
			ServiceName:  v.GetString("otel.service_name"),
			Insecure:     v.GetBool("otel.insecure"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s_DATABASE_URL is required", EnvPrefix)
	}
	if c.ServerAddr == "" {
		return fmt.Errorf("%s_SERVER_ADDR is required", EnvPrefix)
	}
	if c.Invitation.TTL <= 0 {
		return fmt.Errorf("invitation ttl must be positive, got %s", c.Invitation.TTL)
	}
	if _, err := organization.NewTokenGenerator(c.Invitation.TokenBytes); err != nil {
		return fmt.Errorf("invitation token_bytes: %w", err)
	}
	if c.Outbox.Interval <= 0 {
		return fmt.Errorf("outbox interval must be positive, got %s", c.Outbox.Interval)
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("outbox batch_size must be positive, got %d", c.Outbox.BatchSize)
	}
	if c.Outbox.MaxAttempts <= 0 {
		return fmt.Errorf("outbox max_attempts must be positive, got %d", c.Outbox.MaxAttempts)
	}
	if c.Authz.CacheSize <= 0 {
		return fmt.Errorf("authz cache_size must be positive, got %d", c.Authz.CacheSize)
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit rps and burst must be positive")
	}
	return nil
}

// AggregateOptions translates the configuration into organization options.
func (c *Config) AggregateOptions() ([]organization.Option, error) {
	tokens, err := organization.NewTokenGenerator(c.Invitation.TokenBytes)
	if err != nil {
		return nil, err
	}
	matching := organization.RoleNamesCaseSensitive
	if c.Roles.CaseInsensitiveNames {
		matching = organization.RoleNamesCaseInsensitive
	}
	return []organization.Option{
		organization.WithTokenGenerator(tokens),
		organization.WithInvitationTTL(c.Invitation.TTL),
		organization.WithRoleNameMatching(matching),
	}, nil
}

// LogLevel returns the slog level implied by Debug.
func (c *Config) LogLevel() slog.Level {
	if c.Debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
