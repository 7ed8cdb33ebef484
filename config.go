package eduAuth

import (
	"errors"
	"runtime"
	"time"
)

// Config holds every tunable of the authentication engine. Start from
// [DefaultConfig] and override what the deployment needs.
type Config struct {
	JWT           JWTConfig
	Session       SessionConfig
	Lockout       LockoutConfig
	Verification  VerificationConfig
	PasswordReset PasswordResetConfig
	TwoFactor     TwoFactorConfig
	Password      PasswordConfig
	Audit         AuditConfig
	RateLimit     RateLimitConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access-token signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the lifetime of ephemeral Session Store records.
type SessionConfig struct {
	RefreshTTL          time.Duration
	PendingTwoFactorTTL time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls brute-force protection on Login.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

/*
====================================
VERIFICATION / RESET CONFIG
====================================
*/

// VerificationConfig controls email verification tokens.
type VerificationConfig struct {
	TokenTTL time.Duration
}

// PasswordResetConfig controls password reset tokens.
type PasswordResetConfig struct {
	TokenTTL time.Duration
}

/*
====================================
TWO-FACTOR CONFIG
====================================
*/

// TwoFactorConfig controls TOTP enrollment and verification.
type TwoFactorConfig struct {
	Issuer     string
	Period     uint
	Skew       uint
	Digits     int
	EmailCodes bool // also email the current code when login requires 2FA
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig controls argon2id cost and hashing concurrency.
type PasswordConfig struct {
	Memory        uint32 // in KB
	Time          uint32
	Parallelism   uint8
	SaltLength    uint32
	KeyLength     uint32
	MaxConcurrent int

	// UpgradeOnLogin re-hashes a password stored under weaker parameters
	// after the next successful login.
	UpgradeOnLogin bool
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls how audit entries reach the [AuditRecorder].
type AuditConfig struct {
	Enabled    bool
	Async      bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitRule is a fixed-window budget. A zero Limit disables the rule.
type RateLimitRule struct {
	Limit  int
	Window time.Duration
}

// RateLimitConfig groups the optional Session Store limiters.
type RateLimitConfig struct {
	TwoFactor     RateLimitRule // per account, on code checks
	PasswordReset RateLimitRule // per email, on reset requests
	Verification  RateLimitRule // per email, on verification resends
}

// DefaultConfig returns the engine defaults: 15 minute access tokens, 7 day
// refresh tokens, 5 minute 2FA challenges, lockout after 5 failures for 30
// minutes, 24 hour verification and 1 hour reset tokens.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "hs256",
			Issuer:        "eduauth",
		},
		Session: SessionConfig{
			RefreshTTL:          7 * 24 * time.Hour,
			PendingTwoFactorTTL: 5 * time.Minute,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  30 * time.Minute,
		},
		Verification: VerificationConfig{
			TokenTTL: 24 * time.Hour,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL: time.Hour,
		},
		TwoFactor: TwoFactorConfig{
			Issuer: "eduauth",
			Period: 30,
			Skew:   1,
			Digits: 6,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MaxConcurrent:  runtime.GOMAXPROCS(0),
			UpgradeOnLogin: true,
		},
		Audit: AuditConfig{
			Enabled:    true,
			Async:      true,
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate rejects configurations that would weaken the engine's guarantees.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) < 16 {
			return errors.New("hs256 requires a PrivateKey of at least 16 bytes")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Session
	if c.Session.RefreshTTL <= 0 {
		return errors.New("Session RefreshTTL must be > 0")
	}
	if c.Session.PendingTwoFactorTTL <= 0 {
		return errors.New("Session PendingTwoFactorTTL must be > 0")
	}
	if c.Session.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("Session RefreshTTL must exceed JWT AccessTTL")
	}

	// Lockout
	if c.Lockout.Threshold < 1 {
		return errors.New("Lockout Threshold must be >= 1")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	if c.Verification.TokenTTL <= 0 {
		return errors.New("Verification TokenTTL must be > 0")
	}
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}

	// Two-factor
	if c.TwoFactor.Issuer == "" {
		return errors.New("TwoFactor Issuer must be set")
	}
	if c.TwoFactor.Period == 0 {
		return errors.New("TwoFactor Period must be > 0")
	}
	if c.TwoFactor.Skew > 2 {
		return errors.New("TwoFactor Skew must be <= 2")
	}
	if c.TwoFactor.Digits != 6 && c.TwoFactor.Digits != 8 {
		return errors.New("TwoFactor Digits must be 6 or 8")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MaxConcurrent < 1 {
		return errors.New("Password MaxConcurrent must be >= 1")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.Async && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Async is enabled")
	}

	// Rate limits
	for name, rule := range map[string]RateLimitRule{
		"TwoFactor":     c.RateLimit.TwoFactor,
		"PasswordReset": c.RateLimit.PasswordReset,
		"Verification":  c.RateLimit.Verification,
	} {
		if rule.Limit < 0 {
			return errors.New("RateLimit " + name + " Limit must be >= 0")
		}
		if rule.Limit > 0 && rule.Window <= 0 {
			return errors.New("RateLimit " + name + " Window must be > 0 when Limit is set")
		}
	}

	return nil
}
