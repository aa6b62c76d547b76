package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Ticket    TicketSettings    `mapstructure:"ticket"`
	Admin     AdminSettings     `mapstructure:"admin"`
	Allowlist AllowlistSettings `mapstructure:"allowlist"`
	Identity  IdentitySettings  `mapstructure:"identity"`
	Presence  PresenceSettings  `mapstructure:"presence"`
	GitHost   GitHostSettings   `mapstructure:"githost"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// TicketSettings configures session ticket issuance. An empty signing key
// disables the ticket endpoint family rather than failing startup.
type TicketSettings struct {
	SigningKey string        `mapstructure:"signing_key"`
	Issuer     string        `mapstructure:"issuer"`
	Audience   string        `mapstructure:"audience"`
	Lifetime   time.Duration `mapstructure:"lifetime"`
}

// AdminSettings configures operator endpoints. An empty token disables them.
type AdminSettings struct {
	Token string `mapstructure:"token"`
}

// AllowlistSettings configures the issuance policy engine and its sources.
type AllowlistSettings struct {
	Source          string        `mapstructure:"source"`
	PolicyMode      string        `mapstructure:"policy_mode"`
	DevKey          string        `mapstructure:"dev_key"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	DocumentPath    string        `mapstructure:"document_path"`
	ProofTokens     []string      `mapstructure:"proof_tokens"`
	ClientHashes    []string      `mapstructure:"client_hashes"`
	DevHashes       []string      `mapstructure:"dev_hashes"`
	ReleaseHashes   []string      `mapstructure:"release_hashes"`
	LegacyHashes    []string      `mapstructure:"legacy_hashes"`
	MinVersion      string        `mapstructure:"min_version"`
	SandboxID       string        `mapstructure:"sandbox_id"`
	DeploymentID    string        `mapstructure:"deployment_id"`
}

// IdentitySettings configures the identity registry backend and username rules.
type IdentitySettings struct {
	Backend         string        `mapstructure:"backend"`
	DocumentPath    string        `mapstructure:"document_path"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	UsernameMin     int           `mapstructure:"username_min"`
	UsernameMax     int           `mapstructure:"username_max"`
	UsernamePattern string        `mapstructure:"username_pattern"`
	DisplayNameMax  int           `mapstructure:"display_name_max"`
	FriendCodeKey   string        `mapstructure:"friend_code_key"`
}

// PresenceSettings configures the in-memory presence directory.
type PresenceSettings struct {
	TTL       time.Duration `mapstructure:"ttl"`
	InviteTTL time.Duration `mapstructure:"invite_ttl"`
}

// GitHostSettings configures the git-content-style document backend.
type GitHostSettings struct {
	BaseURL string        `mapstructure:"base_url"`
	Repo    string        `mapstructure:"repo"`
	Branch  string        `mapstructure:"branch"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
}

// KafkaSettings configures the Kafka producer
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// RateLimitSettings configures rate limiting windows and max attempts per endpoint
type RateLimitSettings struct {
	WindowDuration      time.Duration `mapstructure:"window_duration"`
	TicketMaxAttempts   int           `mapstructure:"ticket_max_attempts"`
	TransferMaxAttempts int           `mapstructure:"transfer_max_attempts"`
}

// Argon2Settings configures Argon2id recovery-code hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("GATE")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"ticket.signing_key",
		"ticket.issuer",
		"ticket.audience",
		"ticket.lifetime",
		"admin.token",
		"allowlist.source",
		"allowlist.policy_mode",
		"allowlist.dev_key",
		"allowlist.refresh_interval",
		"allowlist.document_path",
		"allowlist.proof_tokens",
		"allowlist.client_hashes",
		"allowlist.dev_hashes",
		"allowlist.release_hashes",
		"allowlist.legacy_hashes",
		"allowlist.min_version",
		"allowlist.sandbox_id",
		"allowlist.deployment_id",
		"identity.backend",
		"identity.document_path",
		"identity.refresh_interval",
		"identity.username_min",
		"identity.username_max",
		"identity.username_pattern",
		"identity.display_name_max",
		"identity.friend_code_key",
		"presence.ttl",
		"presence.invite_ttl",
		"githost.base_url",
		"githost.repo",
		"githost.branch",
		"githost.token",
		"githost.timeout",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.enabled",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"rate_limit.window_duration",
		"rate_limit.ticket_max_attempts",
		"rate_limit.transfer_max_attempts",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "trust-gateway")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("ticket.signing_key", "")
	v.SetDefault("ticket.issuer", "redactedcraft-gateway")
	v.SetDefault("ticket.audience", "redactedcraft-online")
	v.SetDefault("ticket.lifetime", "1h")

	v.SetDefault("admin.token", "")

	v.SetDefault("allowlist.source", "env")
	v.SetDefault("allowlist.policy_mode", "hash_or_proof")
	v.SetDefault("allowlist.refresh_interval", "30s")
	v.SetDefault("allowlist.document_path", "allowlist.json")

	v.SetDefault("identity.backend", "githost")
	v.SetDefault("identity.document_path", "registry.json")
	v.SetDefault("identity.refresh_interval", "15s")
	v.SetDefault("identity.username_min", 3)
	v.SetDefault("identity.username_max", 20)
	v.SetDefault("identity.username_pattern", `^[A-Za-z0-9_]+$`)
	v.SetDefault("identity.display_name_max", 32)
	v.SetDefault("identity.friend_code_key", "")

	v.SetDefault("presence.ttl", "90s")
	v.SetDefault("presence.invite_ttl", "5m")

	v.SetDefault("githost.base_url", "")
	v.SetDefault("githost.repo", "")
	v.SetDefault("githost.branch", "main")
	v.SetDefault("githost.token", "")
	v.SetDefault("githost.timeout", "10s")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "gate")
	v.SetDefault("postgres.password", "gate_password")
	v.SetDefault("postgres.database", "gate")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "gate")
	v.SetDefault("kafka.async", true)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.ticket_max_attempts", 30)
	v.SetDefault("rate_limit.transfer_max_attempts", 5)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "GATE_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
