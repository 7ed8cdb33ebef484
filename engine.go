package eduAuth

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/MrEthical07/eduAuth/jwt"
	"github.com/MrEthical07/eduAuth/password"
	"github.com/MrEthical07/eduAuth/session"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
	maxPasswordBytes  = 4 * maxPasswordLength
	maxTokenLength    = 512
)

// Engine is the Authentication Service. It is safe for concurrent use and
// holds nothing but its injected collaborators; all account state lives in
// the AccountRepository and all session state in Redis.
type Engine struct {
	config    Config
	accounts  AccountRepository
	sessions  *session.Store
	limiter   *session.Limiter
	hasher    *password.Pool
	tokens    *jwt.Manager
	totp      *totpManager
	notifier  NotificationSender
	audit     *auditDispatcher
	metrics   *Metrics
	logger    *zap.Logger
	validate  *validator.Validate
	now       func() time.Time
	dummyHash string
}

// Close flushes pending audit entries.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit entries were discarded instead of
// recorded, for example because the dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// ValidateAccess verifies an access token and returns its claims. Any
// failure is reported as [ErrUnauthorized].
func (e *Engine) ValidateAccess(_ context.Context, accessToken string) (*AccessClaims, error) {
	if accessToken == "" || len(accessToken) > 4096 {
		return nil, ErrUnauthorized
	}

	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		return nil, ErrUnauthorized
	}
	id, err := claims.AccountID()
	if err != nil {
		return nil, ErrUnauthorized
	}

	out := &AccessClaims{
		AccountID: id,
		Email:     claims.Email,
		RoleID:    claims.RoleID,
		TokenID:   claims.ID,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// GetAccount returns the account with secrets stripped.
func (e *Engine) GetAccount(ctx context.Context, accountID int64) (*Account, error) {
	acc, err := e.loadAccount(ctx, accountID, ErrNotFound)
	if err != nil {
		return nil, err
	}
	out := acc.Sanitized()
	return &out, nil
}

// loadAccount fetches accountID, translating a missing row into notFound.
func (e *Engine) loadAccount(ctx context.Context, accountID int64, notFound error) (*Account, error) {
	if accountID <= 0 {
		return nil, notFound
	}
	acc, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, notFound
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	return acc, nil
}

func (e *Engine) saveAccount(ctx context.Context, acc *Account) error {
	acc.UpdatedAt = e.now().UTC()
	if err := e.accounts.Update(ctx, acc); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

// consumeToken persists acc only if token is still the live token of kind.
// A lost race reads the same as an unknown token.
func (e *Engine) consumeToken(ctx context.Context, acc *Account, kind TokenKind, token string) error {
	acc.UpdatedAt = e.now().UTC()
	err := e.accounts.ConsumeToken(ctx, acc, kind, token)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTokenConsumed) || errors.Is(err, ErrAccountNotFound) {
		return ErrInvalidOrExpiredToken
	}
	return fmt.Errorf("consume token: %w", err)
}

func (e *Engine) hashPassword(ctx context.Context, plain string) (string, error) {
	start := time.Now()
	hash, err := e.hasher.Hash(ctx, plain)
	e.metrics.observeHash(time.Since(start))
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func (e *Engine) verifyPassword(ctx context.Context, plain, encoded string) (bool, error) {
	start := time.Now()
	ok, err := e.hasher.Verify(ctx, plain, encoded)
	e.metrics.observeHash(time.Since(start))
	if err != nil {
		return false, fmt.Errorf("verify password: %w", err)
	}
	return ok, nil
}

func (e *Engine) checkPasswordPolicy(plain string) error {
	n := len([]rune(plain))
	if n < minPasswordLength || n > maxPasswordLength || len(plain) > maxPasswordBytes {
		return &ValidationError{Fields: []string{"password"}}
	}
	return nil
}

func (e *Engine) validateStruct(v any) error {
	err := e.validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return &ValidationError{Fields: fields}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func boundedToken(token string) bool {
	return token != "" && len(token) <= maxTokenLength
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func stringPtr(s string) *string {
	return &s
}
