package eduAuth

import (
	"context"
	"fmt"
)

// UnlockAccount clears the failed-login counter and any active lock.
func (e *Engine) UnlockAccount(ctx context.Context, accountID int64) error {
	err := e.unlockAccount(ctx, accountID)
	e.metrics.observeOperation("unlock_account", err)
	return err
}

func (e *Engine) unlockAccount(ctx context.Context, accountID int64) error {
	acc, err := e.loadAccount(ctx, accountID, ErrNotFound)
	if err != nil {
		return err
	}
	if acc.FailedLoginAttempts == 0 && acc.LockedUntil == nil {
		return nil
	}

	acc.FailedLoginAttempts = 0
	acc.LockedUntil = nil
	if err := e.saveAccount(ctx, acc); err != nil {
		return err
	}

	e.emitAudit(ctx, AuditAccountUnlocked, acc.ID, nil)
	return nil
}

// SetAccountEnabled flips the administrative kill switch. Disabling revokes
// every session; outstanding access tokens remain valid until they expire.
func (e *Engine) SetAccountEnabled(ctx context.Context, accountID int64, enabled bool) error {
	err := e.setAccountEnabled(ctx, accountID, enabled)
	e.metrics.observeOperation("set_account_enabled", err)
	return err
}

func (e *Engine) setAccountEnabled(ctx context.Context, accountID int64, enabled bool) error {
	acc, err := e.loadAccount(ctx, accountID, ErrNotFound)
	if err != nil {
		return err
	}

	if acc.IsEnabled != enabled {
		acc.IsEnabled = enabled
		if err := e.saveAccount(ctx, acc); err != nil {
			return err
		}
	}

	if !enabled {
		if err := e.sessions.RevokeAccount(ctx, acc.ID); err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
		e.emitAudit(ctx, AuditAccountDisabled, acc.ID, nil)
		return nil
	}

	e.emitAudit(ctx, AuditAccountEnabled, acc.ID, nil)
	return nil
}
