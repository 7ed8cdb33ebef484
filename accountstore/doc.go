// Package accountstore provides [eduAuth.AccountRepository] implementations:
// a PostgreSQL repository over database/sql with the pgx driver, and an
// in-memory one for tests and local tooling.
//
// Token lookups only match unexpired tokens; the comparison is done in SQL
// against the caller-supplied clock so tests can move time.
package accountstore
