package eduAuth

import (
	"context"
	"time"
)

// Account is the durable account record owned by the [AccountRepository].
// Secrets and single-use tokens are never serialized.
type Account struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	RoleID    *int64 `json:"roleId,omitempty"`

	PasswordHash string `json:"-"`

	IsEmailVerified          bool       `json:"isEmailVerified"`
	EmailVerificationToken   *string    `json:"-"`
	EmailVerificationExpires *time.Time `json:"-"`

	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"lockedUntil,omitempty"`

	TwoFactorEnabled bool    `json:"twoFactorEnabled"`
	TwoFactorSecret  *string `json:"-"`

	PasswordResetToken   *string    `json:"-"`
	PasswordResetExpires *time.Time `json:"-"`

	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	LastLoginIP *string    `json:"lastLoginIp,omitempty"`

	IsEnabled bool `json:"isEnabled"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Sanitized returns a copy of the account with the password hash, 2FA secret
// and every single-use token removed.
func (a *Account) Sanitized() Account {
	if a == nil {
		return Account{}
	}
	out := *a
	out.PasswordHash = ""
	out.TwoFactorSecret = nil
	out.EmailVerificationToken = nil
	out.EmailVerificationExpires = nil
	out.PasswordResetToken = nil
	out.PasswordResetExpires = nil
	return out
}

func (a *Account) lockedAt(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// TokenKind names one of the single-use token columns of [Account].
type TokenKind int

const (
	TokenEmailVerification TokenKind = iota + 1
	TokenPasswordReset
)

// AccountRepository is the durable storage contract for accounts. Lookups that
// match nothing return [ErrAccountNotFound]; Create returns [ErrDuplicateEmail]
// when the email is taken. Token lookups must only match unexpired tokens.
//
// ConsumeToken writes account like Update, but only while the stored token of
// kind still equals token, as one atomic step. When it no longer does, nothing
// is written and [ErrTokenConsumed] is returned.
type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	FindByID(ctx context.Context, id int64) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByVerificationToken(ctx context.Context, token string, now time.Time) (*Account, error)
	FindByPasswordResetToken(ctx context.Context, token string, now time.Time) (*Account, error)
	Update(ctx context.Context, account *Account) error
	ConsumeToken(ctx context.Context, account *Account, kind TokenKind, token string) error
}

// NotificationSender delivers account emails. Calls are fire-and-observe: a
// failure is logged and never unwinds the mutation that preceded it.
type NotificationSender interface {
	SendVerificationEmail(ctx context.Context, email, token string) error
	SendPasswordResetEmail(ctx context.Context, email, token string) error
	SendTwoFactorCode(ctx context.Context, email, code string) error
}

// AuditEntry is one append-only audit record.
type AuditEntry struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resourceId,omitempty"`
	UserID     *int64         `json:"userId,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	IPAddress  string         `json:"ipAddress,omitempty"`
	UserAgent  string         `json:"userAgent,omitempty"`
}

// AuditRecorder persists audit entries. It is best-effort from the engine's
// point of view.
type AuditRecorder interface {
	Log(ctx context.Context, entry AuditEntry) error
}

// RegisterRequest is the input for [Engine.Register].
type RegisterRequest struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
	RoleID    *int64 `json:"roleId,omitempty" validate:"omitempty,gt=0"`
}

// RegisterResult carries the created account (secrets stripped) and the
// verification token handle that was emailed to the user.
type RegisterResult struct {
	Account           Account `json:"account"`
	VerificationToken string  `json:"verificationToken"`
}

// LoginRequest is the input for [Engine.Login].
type LoginRequest struct {
	Email     string `json:"email" validate:"required,max=254"`
	Password  string `json:"password" validate:"required,max=128"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// TokenPair is an access token with its rotating refresh token.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// LoginResult is returned by [Engine.Login] and [Engine.VerifyTwoFactor].
// When RequiresTwoFactor is set, Tokens is nil and the caller must complete
// [Engine.VerifyTwoFactor] first.
type LoginResult struct {
	Account           *Account   `json:"account,omitempty"`
	Tokens            *TokenPair `json:"tokens,omitempty"`
	RequiresTwoFactor bool       `json:"requiresTwoFactor,omitempty"`
	TwoFactorToken    string     `json:"twoFactorToken,omitempty"`
	AccountID         int64      `json:"accountId,omitempty"`
}

// TwoFactorSetup holds the enrollment material returned by [Engine.SetupTwoFactor].
type TwoFactorSetup struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauthUrl"`
}

// AccessClaims is the decoded identity carried by a valid access token.
type AccessClaims struct {
	AccountID int64
	Email     string
	RoleID    *int64
	TokenID   string
	ExpiresAt time.Time
}
