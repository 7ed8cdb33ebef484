// Package auditlog provides eduAuth.AuditRecorder sinks: a zap logger, a
// JSON-lines writer and the audit_logs PostgreSQL table.
package auditlog
