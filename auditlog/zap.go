package auditlog

import (
	"context"

	"github.com/MrEthical07/eduAuth"
	"go.uber.org/zap"
)

// Zap logs every entry at Info on a logger named "audit".
type Zap struct {
	logger *zap.Logger
}

func NewZap(logger *zap.Logger) *Zap {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Zap{logger: logger.Named("audit")}
}

func (z *Zap) Log(_ context.Context, entry eduAuth.AuditEntry) error {
	fields := []zap.Field{
		zap.String("id", entry.ID),
		zap.String("action", entry.Action),
		zap.String("resource", entry.Resource),
		zap.Time("timestamp", entry.Timestamp),
	}
	if entry.ResourceID != "" {
		fields = append(fields, zap.String("resource_id", entry.ResourceID))
	}
	if entry.UserID != nil {
		fields = append(fields, zap.Int64("user_id", *entry.UserID))
	}
	if entry.IPAddress != "" {
		fields = append(fields, zap.String("ip", entry.IPAddress))
	}
	if entry.UserAgent != "" {
		fields = append(fields, zap.String("user_agent", entry.UserAgent))
	}
	if len(entry.Details) > 0 {
		fields = append(fields, zap.Any("details", entry.Details))
	}

	z.logger.Info("audit", fields...)
	return nil
}
