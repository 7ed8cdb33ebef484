package eduAuth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/eduAuth/internal"
	"github.com/MrEthical07/eduAuth/session"
	"go.uber.org/zap"
)

// Login checks credentials in a fixed order: unknown email, active lock,
// password, disabled, unverified. Accounts with 2FA get a pending challenge
// instead of tokens and must finish with [Engine.VerifyTwoFactor].
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	res, err := e.login(ctx, req)
	e.metrics.observeOperation("login", err)
	return res, err
}

func (e *Engine) login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	req.Email = normalizeEmail(req.Email)
	if req.IPAddress == "" {
		req.IPAddress = clientIPFromContext(ctx)
	}
	if req.UserAgent == "" {
		req.UserAgent = userAgentFromContext(ctx)
	}
	ctx = WithUserAgent(WithClientIP(ctx, req.IPAddress), req.UserAgent)

	if err := e.validateStruct(req); err != nil {
		return nil, err
	}

	acc, err := e.accounts.FindByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			return nil, fmt.Errorf("lookup account: %w", err)
		}
		// Same hashing cost as a real mismatch.
		if _, verr := e.verifyPassword(ctx, req.Password, e.dummyHash); verr != nil {
			return nil, verr
		}
		e.emitAudit(ctx, AuditUserLoginFailed, 0, map[string]any{"reason": "unknown_email"})
		return nil, ErrInvalidCredentials
	}

	now := e.now().UTC()
	if acc.lockedAt(now) {
		e.emitAudit(ctx, AuditUserLoginFailed, acc.ID, map[string]any{"reason": "locked"})
		return nil, ErrAccountLocked
	}

	ok, err := e.verifyPassword(ctx, req.Password, acc.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, e.recordFailedLogin(ctx, acc)
	}

	if !acc.IsEnabled {
		e.emitAudit(ctx, AuditUserLoginFailed, acc.ID, map[string]any{"reason": "disabled"})
		return nil, ErrAccountDisabled
	}
	if !acc.IsEmailVerified {
		e.emitAudit(ctx, AuditUserLoginFailed, acc.ID, map[string]any{"reason": "unverified"})
		return nil, ErrEmailNotVerified
	}

	changed := false
	if acc.FailedLoginAttempts != 0 || acc.LockedUntil != nil {
		acc.FailedLoginAttempts = 0
		acc.LockedUntil = nil
		changed = true
	}
	if e.upgradePasswordHash(ctx, acc, req.Password) {
		changed = true
	}
	if changed {
		if err := e.saveAccount(ctx, acc); err != nil {
			return nil, err
		}
	}

	if acc.TwoFactorEnabled {
		return e.beginTwoFactor(ctx, acc, req.IPAddress)
	}

	res, err := e.completeLogin(ctx, acc, req.IPAddress)
	if err != nil {
		return nil, err
	}
	e.emitAudit(ctx, AuditUserLogin, acc.ID, map[string]any{
		"ipAddress": req.IPAddress,
		"userAgent": req.UserAgent,
	})
	return res, nil
}

// recordFailedLogin bumps the failure counter and locks the account once it
// reaches the threshold. The read-modify-write is not serialized across
// concurrent attempts.
func (e *Engine) recordFailedLogin(ctx context.Context, acc *Account) error {
	acc.FailedLoginAttempts++
	locked := false
	if acc.FailedLoginAttempts >= e.config.Lockout.Threshold {
		acc.LockedUntil = timePtr(e.now().UTC().Add(e.config.Lockout.Duration))
		locked = true
	}
	if err := e.saveAccount(ctx, acc); err != nil {
		return err
	}

	e.emitAudit(ctx, AuditUserLoginFailed, acc.ID, map[string]any{
		"reason":   "bad_password",
		"attempts": acc.FailedLoginAttempts,
	})
	if locked {
		e.logger.Info("account locked", zap.Int64("account_id", acc.ID), zap.Int("attempts", acc.FailedLoginAttempts))
		e.emitAudit(ctx, AuditAccountLocked, acc.ID, map[string]any{"lockedUntil": acc.LockedUntil})
	}
	return ErrInvalidCredentials
}

// upgradePasswordHash re-hashes plain under the current parameters when the
// stored hash is weaker. Failures keep the old hash.
func (e *Engine) upgradePasswordHash(ctx context.Context, acc *Account, plain string) bool {
	if !e.config.Password.UpgradeOnLogin {
		return false
	}
	needs, err := e.hasher.NeedsUpgrade(acc.PasswordHash)
	if err != nil || !needs {
		return false
	}
	hash, err := e.hashPassword(ctx, plain)
	if err != nil {
		e.logger.Warn("password hash upgrade failed", zap.Int64("account_id", acc.ID), zap.Error(err))
		return false
	}
	acc.PasswordHash = hash
	return true
}

func (e *Engine) beginTwoFactor(ctx context.Context, acc *Account, ip string) (*LoginResult, error) {
	challenge, err := internal.NewCorrelationID()
	if err != nil {
		return nil, fmt.Errorf("generate two-factor challenge: %w", err)
	}

	marker := &session.PendingTwoFactor{
		Email:     acc.Email,
		Token:     challenge,
		IPAddress: ip,
		CreatedAt: e.now().Unix(),
	}
	if err := e.sessions.SavePending(ctx, acc.ID, marker, e.config.Session.PendingTwoFactorTTL); err != nil {
		return nil, fmt.Errorf("store two-factor challenge: %w", err)
	}

	if e.config.TwoFactor.EmailCodes && acc.TwoFactorSecret != nil {
		code, err := e.totp.Code(*acc.TwoFactorSecret, e.now())
		if err != nil {
			e.logger.Warn("two-factor code generation failed", zap.Int64("account_id", acc.ID), zap.Error(err))
		} else {
			e.notifyTwoFactorCode(ctx, acc.ID, acc.Email, code)
		}
	}

	return &LoginResult{
		RequiresTwoFactor: true,
		TwoFactorToken:    challenge,
		AccountID:         acc.ID,
	}, nil
}
