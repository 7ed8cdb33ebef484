package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/MrEthical07/eduAuth"
	"github.com/MrEthical07/eduAuth/accountstore"
)

// Postgres appends entries to the audit_logs table created by
// accountstore.Migrate.
type Postgres struct {
	db accountstore.DBTX
}

func NewPostgres(db accountstore.DBTX) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Log(ctx context.Context, entry eduAuth.AuditEntry) error {
	var details []byte
	if len(entry.Details) > 0 {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
	}

	query :=
		`INSERT INTO audit_logs (id, occurred_at, action, resource, resource_id,
		 user_id, details, ip_address, user_agent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 `

	_, err := p.db.ExecContext(ctx, query,
		entry.ID, entry.Timestamp, entry.Action, entry.Resource,
		nullString(entry.ResourceID), nullInt64(entry.UserID), details,
		nullString(entry.IPAddress), nullString(entry.UserAgent),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
