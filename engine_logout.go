package eduAuth

import (
	"context"
	"fmt"
)

// Logout clears the pending 2FA challenge of accountID and, when given, its
// refresh token. A refresh token owned by another account is left alone.
// Logging out twice is not an error.
func (e *Engine) Logout(ctx context.Context, accountID int64, refreshToken string) error {
	err := e.logout(ctx, accountID, refreshToken)
	e.metrics.observeOperation("logout", err)
	return err
}

func (e *Engine) logout(ctx context.Context, accountID int64, refreshToken string) error {
	if accountID <= 0 {
		return &ValidationError{Fields: []string{"accountId"}}
	}

	if err := e.sessions.DeletePending(ctx, accountID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}

	revoked := false
	if boundedToken(refreshToken) {
		ok, err := e.sessions.DeleteRefresh(ctx, accountID, refreshToken)
		if err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
		revoked = ok
	}

	e.emitAudit(ctx, AuditUserLogout, accountID, map[string]any{"refreshRevoked": revoked})
	return nil
}

// LogoutAll revokes every refresh token of accountID.
func (e *Engine) LogoutAll(ctx context.Context, accountID int64) error {
	err := e.logoutAll(ctx, accountID)
	e.metrics.observeOperation("logout_all", err)
	return err
}

func (e *Engine) logoutAll(ctx context.Context, accountID int64) error {
	if accountID <= 0 {
		return &ValidationError{Fields: []string{"accountId"}}
	}
	if err := e.sessions.DeletePending(ctx, accountID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	n, err := e.sessions.RevokeAllRefresh(ctx, accountID)
	if err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}

	e.emitAudit(ctx, AuditUserLogout, accountID, map[string]any{"all": true, "revoked": n})
	return nil
}
