package eduAuth

import (
	"context"

	"go.uber.org/zap"
)

// Notification calls are fire-and-observe: the state change that triggered
// them has already been persisted, so a failure is logged and counted only.

func (e *Engine) notifyVerification(ctx context.Context, accountID int64, email, token string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.SendVerificationEmail(ctx, email, token); err != nil {
		e.notificationFailed("verification_email", accountID, err)
	}
}

func (e *Engine) notifyPasswordReset(ctx context.Context, accountID int64, email, token string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.SendPasswordResetEmail(ctx, email, token); err != nil {
		e.notificationFailed("password_reset_email", accountID, err)
	}
}

func (e *Engine) notifyTwoFactorCode(ctx context.Context, accountID int64, email, code string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.SendTwoFactorCode(ctx, email, code); err != nil {
		e.notificationFailed("two_factor_code", accountID, err)
	}
}

func (e *Engine) notificationFailed(kind string, accountID int64, err error) {
	e.metrics.sideEffectFailed(sideEffectNotification)
	e.logger.Warn("notification failed",
		zap.String("kind", kind),
		zap.Int64("account_id", accountID),
		zap.Error(err),
	)
}
