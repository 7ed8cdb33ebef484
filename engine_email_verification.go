package eduAuth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/eduAuth/internal"
	"github.com/MrEthical07/eduAuth/session"
	"go.uber.org/zap"
)

const limiterScopeVerification = "verify"

// VerifyEmail consumes a verification token. Unknown, expired and already
// used tokens all yield [ErrInvalidOrExpiredToken].
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	err := e.verifyEmail(ctx, token)
	e.metrics.observeOperation("verify_email", err)
	return err
}

func (e *Engine) verifyEmail(ctx context.Context, token string) error {
	if !boundedToken(token) {
		return ErrInvalidOrExpiredToken
	}

	now := e.now().UTC()
	acc, err := e.accounts.FindByVerificationToken(ctx, token, now)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("lookup verification token: %w", err)
	}
	if acc.EmailVerificationExpires == nil || !acc.EmailVerificationExpires.After(now) {
		return ErrInvalidOrExpiredToken
	}

	acc.IsEmailVerified = true
	acc.EmailVerificationToken = nil
	acc.EmailVerificationExpires = nil
	if err := e.consumeToken(ctx, acc, TokenEmailVerification, token); err != nil {
		return err
	}

	e.emitAudit(ctx, AuditEmailVerified, acc.ID, nil)
	return nil
}

// ResendVerification issues a fresh verification token for an unverified
// account. Unknown and already verified emails are a silent no-op, as are
// requests over the Verification rate limit.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	err := e.resendVerification(ctx, email)
	e.metrics.observeOperation("resend_verification", err)
	return err
}

func (e *Engine) resendVerification(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return &ValidationError{Fields: []string{"email"}}
	}

	rule := e.config.RateLimit.Verification
	if err := e.limiter.Allow(ctx, limiterScopeVerification, email, rule.Limit, rule.Window); err != nil {
		if errors.Is(err, session.ErrRateLimited) {
			e.logger.Debug("verification resend suppressed", zap.String("reason", "rate_limited"))
			return nil
		}
		return fmt.Errorf("verification limiter: %w", err)
	}

	acc, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil
		}
		return fmt.Errorf("lookup account: %w", err)
	}
	if acc.IsEmailVerified {
		return nil
	}

	token, err := internal.NewOpaqueToken(internal.OpaqueTokenSize)
	if err != nil {
		return fmt.Errorf("generate verification token: %w", err)
	}
	acc.EmailVerificationToken = stringPtr(token)
	acc.EmailVerificationExpires = timePtr(e.now().UTC().Add(e.config.Verification.TokenTTL))
	if err := e.saveAccount(ctx, acc); err != nil {
		return err
	}

	e.notifyVerification(ctx, acc.ID, acc.Email, token)
	e.emitAudit(ctx, AuditVerificationResent, acc.ID, nil)
	return nil
}
