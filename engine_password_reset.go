package eduAuth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/eduAuth/internal"
	"github.com/MrEthical07/eduAuth/session"
	"go.uber.org/zap"
)

const limiterScopeReset = "reset"

// RequestPasswordReset emails a reset token to the account with the given
// address. Unknown emails succeed without sending anything, as do requests
// over the PasswordReset rate limit.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	err := e.requestPasswordReset(ctx, email)
	e.metrics.observeOperation("request_password_reset", err)
	return err
}

func (e *Engine) requestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" || len(email) > 254 {
		return &ValidationError{Fields: []string{"email"}}
	}

	rule := e.config.RateLimit.PasswordReset
	if err := e.limiter.Allow(ctx, limiterScopeReset, email, rule.Limit, rule.Window); err != nil {
		if errors.Is(err, session.ErrRateLimited) {
			e.logger.Debug("password reset suppressed", zap.String("reason", "rate_limited"))
			return nil
		}
		return fmt.Errorf("password reset limiter: %w", err)
	}

	acc, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil
		}
		return fmt.Errorf("lookup account: %w", err)
	}

	token, err := internal.NewOpaqueToken(internal.OpaqueTokenSize)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	acc.PasswordResetToken = stringPtr(token)
	acc.PasswordResetExpires = timePtr(e.now().UTC().Add(e.config.PasswordReset.TokenTTL))
	if err := e.saveAccount(ctx, acc); err != nil {
		return err
	}

	e.notifyPasswordReset(ctx, acc.ID, acc.Email, token)
	e.emitAudit(ctx, AuditPasswordResetRequested, acc.ID, nil)
	return nil
}

// ResetPassword consumes a reset token and sets newPassword. It also clears
// the lockout and revokes every session of the account.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	err := e.resetPassword(ctx, token, newPassword)
	e.metrics.observeOperation("reset_password", err)
	return err
}

func (e *Engine) resetPassword(ctx context.Context, token, newPassword string) error {
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}
	if !boundedToken(token) {
		return ErrInvalidOrExpiredToken
	}

	now := e.now().UTC()
	acc, err := e.accounts.FindByPasswordResetToken(ctx, token, now)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("lookup reset token: %w", err)
	}
	if acc.PasswordResetExpires == nil || !acc.PasswordResetExpires.After(now) {
		return ErrInvalidOrExpiredToken
	}

	hash, err := e.hashPassword(ctx, newPassword)
	if err != nil {
		return err
	}
	acc.PasswordHash = hash
	acc.PasswordResetToken = nil
	acc.PasswordResetExpires = nil
	acc.FailedLoginAttempts = 0
	acc.LockedUntil = nil
	if err := e.consumeToken(ctx, acc, TokenPasswordReset, token); err != nil {
		return err
	}

	if err := e.sessions.RevokeAccount(ctx, acc.ID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}

	e.emitAudit(ctx, AuditPasswordReset, acc.ID, nil)
	return nil
}

// ChangePassword replaces the password of a signed-in account after checking
// the current one. Other sessions are revoked.
func (e *Engine) ChangePassword(ctx context.Context, accountID int64, oldPassword, newPassword string) error {
	err := e.changePassword(ctx, accountID, oldPassword, newPassword)
	e.metrics.observeOperation("change_password", err)
	return err
}

func (e *Engine) changePassword(ctx context.Context, accountID int64, oldPassword, newPassword string) error {
	if oldPassword == "" || len(oldPassword) > maxPasswordBytes {
		return ErrInvalidCredentials
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	acc, err := e.loadAccount(ctx, accountID, ErrNotFound)
	if err != nil {
		return err
	}
	ok, err := e.verifyPassword(ctx, oldPassword, acc.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}

	hash, err := e.hashPassword(ctx, newPassword)
	if err != nil {
		return err
	}
	acc.PasswordHash = hash
	if err := e.saveAccount(ctx, acc); err != nil {
		return err
	}
	if err := e.sessions.RevokeAccount(ctx, acc.ID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}

	e.emitAudit(ctx, AuditPasswordChanged, acc.ID, nil)
	return nil
}
