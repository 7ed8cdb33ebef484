package eduAuth

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/eduAuth/session"
)

const limiterScopeTwoFactor = "2fa"

// VerifyTwoFactor completes a login that returned RequiresTwoFactor. It needs
// the pending challenge stored by [Engine.Login]; without one the code is
// rejected as [ErrInvalidTwoFactorCode]. On success the challenge is consumed
// and a token pair is issued.
func (e *Engine) VerifyTwoFactor(ctx context.Context, accountID int64, code string) (*LoginResult, error) {
	res, err := e.verifyTwoFactor(ctx, accountID, "", code)
	e.metrics.observeOperation("verify_two_factor", err)
	return res, err
}

// VerifyTwoFactorChallenge is [Engine.VerifyTwoFactor] that additionally
// binds the attempt to the TwoFactorToken returned by Login.
func (e *Engine) VerifyTwoFactorChallenge(ctx context.Context, accountID int64, challenge, code string) (*LoginResult, error) {
	if !boundedToken(challenge) {
		e.metrics.observeOperation("verify_two_factor", ErrInvalidTwoFactorCode)
		return nil, ErrInvalidTwoFactorCode
	}
	res, err := e.verifyTwoFactor(ctx, accountID, challenge, code)
	e.metrics.observeOperation("verify_two_factor", err)
	return res, err
}

func (e *Engine) verifyTwoFactor(ctx context.Context, accountID int64, challenge, code string) (*LoginResult, error) {
	acc, err := e.loadAccount(ctx, accountID, ErrTwoFactorNotEnabled)
	if err != nil {
		return nil, err
	}
	if !acc.TwoFactorEnabled || acc.TwoFactorSecret == nil {
		return nil, ErrTwoFactorNotEnabled
	}

	if err := e.allowTwoFactorAttempt(ctx, acc.ID); err != nil {
		return nil, err
	}

	pending, err := e.sessions.GetPending(ctx, acc.ID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrCorruptRecord) {
			return nil, ErrInvalidTwoFactorCode
		}
		return nil, fmt.Errorf("load two-factor challenge: %w", err)
	}
	if challenge != "" && pending.Token != challenge {
		return nil, ErrInvalidTwoFactorCode
	}

	if !e.totp.Validate(*acc.TwoFactorSecret, code, e.now()) {
		e.emitAudit(ctx, AuditUserLoginFailed, acc.ID, map[string]any{"reason": "bad_two_factor_code"})
		return nil, ErrInvalidTwoFactorCode
	}

	if err := e.sessions.DeletePending(ctx, acc.ID); err != nil {
		return nil, fmt.Errorf("clear two-factor challenge: %w", err)
	}

	ip := pending.IPAddress
	if ip == "" {
		ip = clientIPFromContext(ctx)
	}
	res, err := e.completeLogin(ctx, acc, ip)
	if err != nil {
		return nil, err
	}
	e.emitAudit(ctx, AuditTwoFactorVerified, acc.ID, map[string]any{"ipAddress": ip})
	return res, nil
}

func (e *Engine) allowTwoFactorAttempt(ctx context.Context, accountID int64) error {
	rule := e.config.RateLimit.TwoFactor
	err := e.limiter.Allow(ctx, limiterScopeTwoFactor, strconv.FormatInt(accountID, 10), rule.Limit, rule.Window)
	if err == nil {
		return nil
	}
	if errors.Is(err, session.ErrRateLimited) {
		return ErrRateLimited
	}
	return fmt.Errorf("two-factor limiter: %w", err)
}

// SetupTwoFactor generates a new TOTP secret for the account and stores it
// without enabling 2FA. Calling it again before enabling replaces the secret.
func (e *Engine) SetupTwoFactor(ctx context.Context, accountID int64) (*TwoFactorSetup, error) {
	res, err := e.setupTwoFactor(ctx, accountID)
	e.metrics.observeOperation("setup_two_factor", err)
	return res, err
}

func (e *Engine) setupTwoFactor(ctx context.Context, accountID int64) (*TwoFactorSetup, error) {
	acc, err := e.loadAccount(ctx, accountID, ErrNotFound)
	if err != nil {
		return nil, err
	}
	if acc.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	secret, url, err := e.totp.Generate(acc.Email)
	if err != nil {
		return nil, fmt.Errorf("generate two-factor secret: %w", err)
	}
	acc.TwoFactorSecret = stringPtr(secret)
	if err := e.saveAccount(ctx, acc); err != nil {
		return nil, err
	}

	e.emitAudit(ctx, AuditTwoFactorSetup, acc.ID, nil)
	return &TwoFactorSetup{Secret: secret, OTPAuthURL: url}, nil
}

// EnableTwoFactor turns 2FA on after one valid code proves possession of the
// secret stored by [Engine.SetupTwoFactor].
func (e *Engine) EnableTwoFactor(ctx context.Context, accountID int64, code string) error {
	err := e.enableTwoFactor(ctx, accountID, code)
	e.metrics.observeOperation("enable_two_factor", err)
	return err
}

func (e *Engine) enableTwoFactor(ctx context.Context, accountID int64, code string) error {
	acc, err := e.loadAccount(ctx, accountID, ErrNotFound)
	if err != nil {
		return err
	}
	if acc.TwoFactorEnabled {
		return ErrTwoFactorAlreadyEnabled
	}
	if acc.TwoFactorSecret == nil {
		return ErrTwoFactorNotEnabled
	}
	if err := e.allowTwoFactorAttempt(ctx, acc.ID); err != nil {
		return err
	}
	if !e.totp.Validate(*acc.TwoFactorSecret, code, e.now()) {
		return ErrInvalidTwoFactorCode
	}

	acc.TwoFactorEnabled = true
	if err := e.saveAccount(ctx, acc); err != nil {
		return err
	}

	e.emitAudit(ctx, AuditTwoFactorEnabled, acc.ID, nil)
	return nil
}

// DisableTwoFactor clears the secret and flag. A valid current code is
// required.
func (e *Engine) DisableTwoFactor(ctx context.Context, accountID int64, code string) error {
	err := e.disableTwoFactor(ctx, accountID, code)
	e.metrics.observeOperation("disable_two_factor", err)
	return err
}

func (e *Engine) disableTwoFactor(ctx context.Context, accountID int64, code string) error {
	acc, err := e.loadAccount(ctx, accountID, ErrNotFound)
	if err != nil {
		return err
	}
	if !acc.TwoFactorEnabled || acc.TwoFactorSecret == nil {
		return ErrTwoFactorNotEnabled
	}
	if err := e.allowTwoFactorAttempt(ctx, acc.ID); err != nil {
		return err
	}
	if !e.totp.Validate(*acc.TwoFactorSecret, code, e.now()) {
		return ErrInvalidTwoFactorCode
	}

	acc.TwoFactorEnabled = false
	acc.TwoFactorSecret = nil
	if err := e.saveAccount(ctx, acc); err != nil {
		return err
	}
	if err := e.sessions.DeletePending(ctx, acc.ID); err != nil {
		return fmt.Errorf("clear two-factor challenge: %w", err)
	}

	e.emitAudit(ctx, AuditTwoFactorDisabled, acc.ID, nil)
	return nil
}
