package eduAuth

import (
	"context"
	"strconv"

	"github.com/MrEthical07/eduAuth/internal"
	"go.uber.org/zap"
)

// Audit actions recorded by the Engine.
const (
	AuditUserRegistered         = "USER_REGISTERED"
	AuditEmailVerified          = "EMAIL_VERIFIED"
	AuditVerificationResent     = "VERIFICATION_RESENT"
	AuditUserLogin              = "USER_LOGIN"
	AuditUserLoginFailed        = "USER_LOGIN_FAILED"
	AuditAccountLocked          = "ACCOUNT_LOCKED"
	AuditTwoFactorVerified      = "TWO_FACTOR_VERIFIED"
	AuditTwoFactorSetup         = "TWO_FACTOR_SETUP"
	AuditTwoFactorEnabled       = "TWO_FACTOR_ENABLED"
	AuditTwoFactorDisabled      = "TWO_FACTOR_DISABLED"
	AuditTokenRefreshed         = "TOKEN_REFRESHED"
	AuditUserLogout             = "USER_LOGOUT"
	AuditPasswordResetRequested = "PASSWORD_RESET_REQUESTED"
	AuditPasswordReset          = "PASSWORD_RESET"
	AuditPasswordChanged        = "PASSWORD_CHANGED"
	AuditAccountUnlocked        = "ACCOUNT_UNLOCKED"
	AuditAccountEnabled         = "ACCOUNT_ENABLED"
	AuditAccountDisabled        = "ACCOUNT_DISABLED"
)

const auditResourceUser = "user"

func (e *Engine) emitAudit(ctx context.Context, action string, accountID int64, details map[string]any) {
	if e == nil || e.audit == nil {
		return
	}

	id, err := internal.NewCorrelationID()
	if err != nil {
		e.logger.Warn("audit id generation failed", zap.String("action", action), zap.Error(err))
	}

	entry := AuditEntry{
		ID:        id,
		Timestamp: e.now().UTC(),
		Action:    action,
		Resource:  auditResourceUser,
		Details:   details,
		IPAddress: clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	}
	if accountID > 0 {
		uid := accountID
		entry.UserID = &uid
		entry.ResourceID = strconv.FormatInt(accountID, 10)
	}

	e.audit.Emit(ctx, entry)
}
