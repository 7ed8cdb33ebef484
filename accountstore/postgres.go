package accountstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/eduAuth"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolation = "23505"

// DBTX is the subset of database/sql used by the repository. Both *sql.DB and
// *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Postgres stores accounts in the accounts table.
type Postgres struct {
	db DBTX
}

func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

// Open connects to dsn with the pgx driver and pings it.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

const accountColumns = `id, first_name, last_name, email, role_id, password_hash,
		 is_email_verified, email_verification_token, email_verification_expires,
		 failed_login_attempts, locked_until, two_factor_enabled, two_factor_secret,
		 password_reset_token, password_reset_expires, last_login_at, last_login_ip,
		 is_enabled, created_at, updated_at`

func (r *Postgres) Create(ctx context.Context, acc *eduAuth.Account) error {
	query :=
		`INSERT INTO accounts (first_name, last_name, email, role_id, password_hash,
		 is_email_verified, email_verification_token, email_verification_expires,
		 is_enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query,
		acc.FirstName, acc.LastName, acc.Email, nullInt64(acc.RoleID), acc.PasswordHash,
		acc.IsEmailVerified, nullString(acc.EmailVerificationToken), nullTime(acc.EmailVerificationExpires),
		acc.IsEnabled, acc.CreatedAt, acc.UpdatedAt,
	).Scan(&acc.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return eduAuth.ErrDuplicateEmail
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *Postgres) FindByID(ctx context.Context, id int64) (*eduAuth.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		 WHERE id = $1
		 `
	return r.queryOne(ctx, query, id)
}

func (r *Postgres) FindByEmail(ctx context.Context, email string) (*eduAuth.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		 WHERE email = $1
		 `
	return r.queryOne(ctx, query, email)
}

func (r *Postgres) FindByVerificationToken(ctx context.Context, token string, now time.Time) (*eduAuth.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		 WHERE email_verification_token = $1 AND email_verification_expires > $2
		 `
	return r.queryOne(ctx, query, token, now)
}

func (r *Postgres) FindByPasswordResetToken(ctx context.Context, token string, now time.Time) (*eduAuth.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		 WHERE password_reset_token = $1 AND password_reset_expires > $2
		 `
	return r.queryOne(ctx, query, token, now)
}

const updateAccount = `UPDATE accounts SET first_name = $2, last_name = $3, email = $4, role_id = $5,
		 password_hash = $6, is_email_verified = $7, email_verification_token = $8,
		 email_verification_expires = $9, failed_login_attempts = $10, locked_until = $11,
		 two_factor_enabled = $12, two_factor_secret = $13, password_reset_token = $14,
		 password_reset_expires = $15, last_login_at = $16, last_login_ip = $17,
		 is_enabled = $18, updated_at = $19
		 WHERE id = $1`

// Update writes every mutable column of acc.
func (r *Postgres) Update(ctx context.Context, acc *eduAuth.Account) error {
	n, err := r.update(ctx, updateAccount, acc)
	if err != nil {
		return err
	}
	if n == 0 {
		return eduAuth.ErrAccountNotFound
	}
	return nil
}

// ConsumeToken writes acc only while the row still holds token in the column
// selected by kind. The check and the write are one UPDATE statement.
func (r *Postgres) ConsumeToken(ctx context.Context, acc *eduAuth.Account, kind eduAuth.TokenKind, token string) error {
	var column string
	switch kind {
	case eduAuth.TokenEmailVerification:
		column = "email_verification_token"
	case eduAuth.TokenPasswordReset:
		column = "password_reset_token"
	default:
		return fmt.Errorf("unknown token kind %d", kind)
	}

	n, err := r.update(ctx, updateAccount+` AND `+column+` = $20`, acc, token)
	if err != nil {
		return err
	}
	if n == 0 {
		return eduAuth.ErrTokenConsumed
	}
	return nil
}

func (r *Postgres) update(ctx context.Context, query string, acc *eduAuth.Account, extra ...any) (int64, error) {
	args := []any{
		acc.ID, acc.FirstName, acc.LastName, acc.Email, nullInt64(acc.RoleID),
		acc.PasswordHash, acc.IsEmailVerified, nullString(acc.EmailVerificationToken),
		nullTime(acc.EmailVerificationExpires), acc.FailedLoginAttempts, nullTime(acc.LockedUntil),
		acc.TwoFactorEnabled, nullString(acc.TwoFactorSecret), nullString(acc.PasswordResetToken),
		nullTime(acc.PasswordResetExpires), nullTime(acc.LastLoginAt), nullString(acc.LastLoginIP),
		acc.IsEnabled, acc.UpdatedAt,
	}
	res, err := r.db.ExecContext(ctx, query, append(args, extra...)...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, eduAuth.ErrDuplicateEmail
		}
		return 0, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *Postgres) queryOne(ctx context.Context, query string, args ...any) (*eduAuth.Account, error) {
	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eduAuth.ErrAccountNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return acc, nil
}

func scanAccount(row *sql.Row) (*eduAuth.Account, error) {
	var (
		acc                                    eduAuth.Account
		roleID                                 sql.NullInt64
		verifyToken, secret, resetToken, ip    sql.NullString
		verifyExp, lockedUntil, resetExp, last sql.NullTime
	)

	err := row.Scan(
		&acc.ID, &acc.FirstName, &acc.LastName, &acc.Email, &roleID, &acc.PasswordHash,
		&acc.IsEmailVerified, &verifyToken, &verifyExp,
		&acc.FailedLoginAttempts, &lockedUntil, &acc.TwoFactorEnabled, &secret,
		&resetToken, &resetExp, &last, &ip,
		&acc.IsEnabled, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	acc.RoleID = int64Ptr(roleID)
	acc.EmailVerificationToken = stringPtr(verifyToken)
	acc.EmailVerificationExpires = timePtr(verifyExp)
	acc.LockedUntil = timePtr(lockedUntil)
	acc.TwoFactorSecret = stringPtr(secret)
	acc.PasswordResetToken = stringPtr(resetToken)
	acc.PasswordResetExpires = timePtr(resetExp)
	acc.LastLoginAt = timePtr(last)
	acc.LastLoginIP = stringPtr(ip)
	return &acc, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
