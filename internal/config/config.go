// Package config loads the eduauth server configuration from a YAML file,
// an optional .env file and the process environment, in that order of
// increasing precedence.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	eduAuth "github.com/MrEthical07/eduAuth"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	SMTP         SMTPConfig         `yaml:"smtp"`
	Logging      LoggingConfig      `yaml:"logging"`
	JWT          JWTConfig          `yaml:"jwt"`
	Session      SessionConfig      `yaml:"session"`
	Lockout      LockoutConfig      `yaml:"lockout"`
	Tokens       TokenConfig        `yaml:"tokens"`
	TwoFactor    TwoFactorConfig    `yaml:"two_factor"`
	PasswordHash PasswordHashConfig `yaml:"password_hash"`
	Audit        AuditConfig        `yaml:"audit"`
	RateLimiting RateLimitConfig    `yaml:"rate_limiting"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"EDUAUTH_HTTP_ADDR" env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"EDUAUTH_HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"EDUAUTH_HTTP_WRITE_TIMEOUT" env-default:"10s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"EDUAUTH_HTTP_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"EDUAUTH_HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`
	MetricsPath     string        `yaml:"metrics_path" env:"EDUAUTH_METRICS_PATH" env-default:"/metrics"`
}

type DatabaseConfig struct {
	DSN         string `yaml:"dsn" env:"EDUAUTH_DATABASE_DSN"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"EDUAUTH_DATABASE_AUTO_MIGRATE"`
	AuditTable  bool   `yaml:"audit_table" env:"EDUAUTH_DATABASE_AUDIT_TABLE"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"EDUAUTH_REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"EDUAUTH_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"EDUAUTH_REDIS_DB"`
}

type SMTPConfig struct {
	Host      string `yaml:"host" env:"EDUAUTH_SMTP_HOST"`
	Port      int    `yaml:"port" env:"EDUAUTH_SMTP_PORT" env-default:"587"`
	Username  string `yaml:"username" env:"EDUAUTH_SMTP_USERNAME"`
	Password  string `yaml:"password" env:"EDUAUTH_SMTP_PASSWORD"`
	From      string `yaml:"from" env:"EDUAUTH_SMTP_FROM"`
	VerifyURL string `yaml:"verify_url" env:"EDUAUTH_VERIFY_URL"`
	ResetURL  string `yaml:"reset_url" env:"EDUAUTH_RESET_URL"`
	Product   string `yaml:"product" env:"EDUAUTH_PRODUCT_NAME" env-default:"EduAuth"`
}

// Enabled reports whether outgoing mail is configured. Without it the server
// logs notifications instead of sending them.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

type LoggingConfig struct {
	Level       string `yaml:"level" env:"EDUAUTH_LOG_LEVEL" env-default:"info"`
	Environment string `yaml:"environment" env:"EDUAUTH_ENV" env-default:"development"`
}

type JWTConfig struct {
	SigningMethod string        `yaml:"signing_method" env:"EDUAUTH_JWT_SIGNING_METHOD"`
	Secret        string        `yaml:"secret" env:"EDUAUTH_JWT_SECRET"`
	PrivateKey    string        `yaml:"private_key" env:"EDUAUTH_JWT_PRIVATE_KEY"` // base64
	PublicKey     string        `yaml:"public_key" env:"EDUAUTH_JWT_PUBLIC_KEY"`   // base64
	Issuer        string        `yaml:"issuer" env:"EDUAUTH_JWT_ISSUER"`
	Audience      string        `yaml:"audience" env:"EDUAUTH_JWT_AUDIENCE"`
	AccessTTL     time.Duration `yaml:"access_ttl" env:"EDUAUTH_JWT_ACCESS_TTL"`
	Leeway        time.Duration `yaml:"leeway" env:"EDUAUTH_JWT_LEEWAY"`
}

type SessionConfig struct {
	RefreshTTL          time.Duration `yaml:"refresh_ttl" env:"EDUAUTH_REFRESH_TTL"`
	PendingTwoFactorTTL time.Duration `yaml:"pending_two_factor_ttl" env:"EDUAUTH_PENDING_2FA_TTL"`
}

type LockoutConfig struct {
	MaxFailedAttempts int           `yaml:"max_failed_attempts" env:"EDUAUTH_LOCKOUT_MAX_FAILED_ATTEMPTS"`
	Duration          time.Duration `yaml:"duration" env:"EDUAUTH_LOCKOUT_DURATION"`
}

type TokenConfig struct {
	EmailVerificationTTL time.Duration `yaml:"email_verification_ttl" env:"EDUAUTH_EMAIL_VERIFICATION_TTL"`
	PasswordResetTTL     time.Duration `yaml:"password_reset_ttl" env:"EDUAUTH_PASSWORD_RESET_TTL"`
}

type TwoFactorConfig struct {
	Issuer     string `yaml:"issuer" env:"EDUAUTH_TOTP_ISSUER"`
	Period     uint   `yaml:"period" env:"EDUAUTH_TOTP_PERIOD"`
	Skew       uint   `yaml:"skew" env:"EDUAUTH_TOTP_SKEW"`
	Digits     int    `yaml:"digits" env:"EDUAUTH_TOTP_DIGITS"`
	EmailCodes bool   `yaml:"email_codes" env:"EDUAUTH_TOTP_EMAIL_CODES"`
}

type PasswordHashConfig struct {
	Memory         uint32 `yaml:"memory" env:"EDUAUTH_ARGON2_MEMORY"`
	Iterations     uint32 `yaml:"iterations" env:"EDUAUTH_ARGON2_ITERATIONS"`
	Parallelism    uint8  `yaml:"parallelism" env:"EDUAUTH_ARGON2_PARALLELISM"`
	SaltLength     uint32 `yaml:"salt_length" env:"EDUAUTH_ARGON2_SALT_LENGTH"`
	KeyLength      uint32 `yaml:"key_length" env:"EDUAUTH_ARGON2_KEY_LENGTH"`
	MaxConcurrent  int    `yaml:"max_concurrent" env:"EDUAUTH_ARGON2_MAX_CONCURRENT"`
	UpgradeOnLogin bool   `yaml:"upgrade_on_login" env:"EDUAUTH_ARGON2_UPGRADE_ON_LOGIN"`
}

type AuditConfig struct {
	Enabled    bool   `yaml:"enabled" env:"EDUAUTH_AUDIT_ENABLED"`
	Async      bool   `yaml:"async" env:"EDUAUTH_AUDIT_ASYNC"`
	BufferSize int    `yaml:"buffer_size" env:"EDUAUTH_AUDIT_BUFFER_SIZE"`
	DropIfFull bool   `yaml:"drop_if_full" env:"EDUAUTH_AUDIT_DROP_IF_FULL"`
	Sink       string `yaml:"sink" env:"EDUAUTH_AUDIT_SINK" env-default:"log"` // log | postgres | stdout
}

// RateLimitRule is a fixed-window budget. A zero limit disables the rule.
type RateLimitRule struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

type RateLimitConfig struct {
	TwoFactorPerAccount   RateLimitRule `yaml:"two_factor_per_account"`
	PasswordResetPerEmail RateLimitRule `yaml:"password_reset_per_email"`
	VerificationPerEmail  RateLimitRule `yaml:"verification_per_email"`
}

// Default returns a Config seeded with the engine defaults and conservative
// limiter budgets.
func Default() Config {
	d := eduAuth.DefaultConfig()
	return Config{
		JWT: JWTConfig{
			SigningMethod: d.JWT.SigningMethod,
			Issuer:        d.JWT.Issuer,
			AccessTTL:     d.JWT.AccessTTL,
		},
		Session: SessionConfig{
			RefreshTTL:          d.Session.RefreshTTL,
			PendingTwoFactorTTL: d.Session.PendingTwoFactorTTL,
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts: d.Lockout.Threshold,
			Duration:          d.Lockout.Duration,
		},
		Tokens: TokenConfig{
			EmailVerificationTTL: d.Verification.TokenTTL,
			PasswordResetTTL:     d.PasswordReset.TokenTTL,
		},
		TwoFactor: TwoFactorConfig{
			Issuer:     d.TwoFactor.Issuer,
			Period:     d.TwoFactor.Period,
			Skew:       d.TwoFactor.Skew,
			Digits:     d.TwoFactor.Digits,
			EmailCodes: d.TwoFactor.EmailCodes,
		},
		PasswordHash: PasswordHashConfig{
			Memory:         d.Password.Memory,
			Iterations:     d.Password.Time,
			Parallelism:    d.Password.Parallelism,
			SaltLength:     d.Password.SaltLength,
			KeyLength:      d.Password.KeyLength,
			MaxConcurrent:  d.Password.MaxConcurrent,
			UpgradeOnLogin: d.Password.UpgradeOnLogin,
		},
		Audit: AuditConfig{
			Enabled:    d.Audit.Enabled,
			Async:      d.Audit.Async,
			BufferSize: d.Audit.BufferSize,
			DropIfFull: d.Audit.DropIfFull,
		},
		RateLimiting: RateLimitConfig{
			TwoFactorPerAccount:   RateLimitRule{Limit: 10, Window: 15 * time.Minute},
			PasswordResetPerEmail: RateLimitRule{Limit: 3, Window: time.Hour},
			VerificationPerEmail:  RateLimitRule{Limit: 3, Window: time.Hour},
		},
	}
}

// Load reads the YAML file at path over [Default], then applies .env and
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return &cfg, nil
}

// Engine maps the file configuration onto the engine's [eduAuth.Config] and
// validates the result.
func (c *Config) Engine() (eduAuth.Config, error) {
	out := eduAuth.DefaultConfig()

	out.JWT.SigningMethod = c.JWT.SigningMethod
	out.JWT.Issuer = c.JWT.Issuer
	out.JWT.Audience = c.JWT.Audience
	out.JWT.AccessTTL = c.JWT.AccessTTL
	out.JWT.Leeway = c.JWT.Leeway
	switch c.JWT.SigningMethod {
	case "ed25519":
		priv, err := base64.StdEncoding.DecodeString(c.JWT.PrivateKey)
		if err != nil {
			return eduAuth.Config{}, fmt.Errorf("decode jwt private key: %w", err)
		}
		pub, err := base64.StdEncoding.DecodeString(c.JWT.PublicKey)
		if err != nil {
			return eduAuth.Config{}, fmt.Errorf("decode jwt public key: %w", err)
		}
		out.JWT.PrivateKey = priv
		out.JWT.PublicKey = pub
	default:
		out.JWT.PrivateKey = []byte(c.JWT.Secret)
	}

	out.Session.RefreshTTL = c.Session.RefreshTTL
	out.Session.PendingTwoFactorTTL = c.Session.PendingTwoFactorTTL

	out.Lockout.Threshold = c.Lockout.MaxFailedAttempts
	out.Lockout.Duration = c.Lockout.Duration

	out.Verification.TokenTTL = c.Tokens.EmailVerificationTTL
	out.PasswordReset.TokenTTL = c.Tokens.PasswordResetTTL

	out.TwoFactor = eduAuth.TwoFactorConfig{
		Issuer:     c.TwoFactor.Issuer,
		Period:     c.TwoFactor.Period,
		Skew:       c.TwoFactor.Skew,
		Digits:     c.TwoFactor.Digits,
		EmailCodes: c.TwoFactor.EmailCodes,
	}

	out.Password = eduAuth.PasswordConfig{
		Memory:         c.PasswordHash.Memory,
		Time:           c.PasswordHash.Iterations,
		Parallelism:    c.PasswordHash.Parallelism,
		SaltLength:     c.PasswordHash.SaltLength,
		KeyLength:      c.PasswordHash.KeyLength,
		MaxConcurrent:  c.PasswordHash.MaxConcurrent,
		UpgradeOnLogin: c.PasswordHash.UpgradeOnLogin,
	}

	out.Audit = eduAuth.AuditConfig{
		Enabled:    c.Audit.Enabled,
		Async:      c.Audit.Async,
		BufferSize: c.Audit.BufferSize,
		DropIfFull: c.Audit.DropIfFull,
	}

	out.RateLimit = eduAuth.RateLimitConfig{
		TwoFactor:     eduAuth.RateLimitRule(c.RateLimiting.TwoFactorPerAccount),
		PasswordReset: eduAuth.RateLimitRule(c.RateLimiting.PasswordResetPerEmail),
		Verification:  eduAuth.RateLimitRule(c.RateLimiting.VerificationPerEmail),
	}

	if err := out.Validate(); err != nil {
		return eduAuth.Config{}, err
	}
	return out, nil
}
