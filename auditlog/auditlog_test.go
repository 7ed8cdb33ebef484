package auditlog

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/MrEthical07/eduAuth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var (
	_ eduAuth.AuditRecorder = (*JSONWriter)(nil)
	_ eduAuth.AuditRecorder = (*Zap)(nil)
	_ eduAuth.AuditRecorder = (*Postgres)(nil)
)

func sampleEntry() eduAuth.AuditEntry {
	uid := int64(7)
	return eduAuth.AuditEntry{
		ID:         "3f0e6a0c-1c1b-4f7e-9c55-0b7f2a7a0001",
		Timestamp:  time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		Action:     eduAuth.AuditUserLogin,
		Resource:   "user",
		ResourceID: "7",
		UserID:     &uid,
		Details:    map[string]any{"ipAddress": "203.0.113.7"},
		IPAddress:  "203.0.113.7",
	}
}

func TestJSONWriterWritesOneLinePerEntry(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf)

	require.NoError(t, w.Log(context.Background(), sampleEntry()))
	require.NoError(t, w.Log(context.Background(), sampleEntry()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &decoded))
	assert.Equal(t, "USER_LOGIN", decoded["action"])
	assert.Equal(t, float64(7), decoded["userId"])
	assert.NotContains(t, decoded, "userAgent")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestJSONWriterReportsWriteFailure(t *testing.T) {
	err := NewJSONWriter(failingWriter{}).Log(context.Background(), sampleEntry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestZapRecorderFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	z := NewZap(zap.New(core))

	require.NoError(t, z.Log(context.Background(), sampleEntry()))

	entries := logs.FilterLoggerName("audit").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "USER_LOGIN", fields["action"])
	assert.Equal(t, int64(7), fields["user_id"])
	assert.Equal(t, "203.0.113.7", fields["ip"])
	assert.NotContains(t, fields, "user_agent")
}

func TestPostgresRecorderInsert(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	e := sampleEntry()
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+audit_logs\s*\(.*\)\s*VALUES\s*\(\$1,.*\$9\)\s*$`).
		WithArgs(e.ID, e.Timestamp, "USER_LOGIN", "user", "7", int64(7),
			[]byte(`{"ipAddress":"203.0.113.7"}`), "203.0.113.7", sql.NullString{}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewPostgres(db).Log(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecorderDBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnError(errors.New("db down"))

	err = NewPostgres(db).Log(context.Background(), eduAuth.AuditEntry{Action: "X"})
	require.Error(t, err)
	assert.Regexp(t, `db error: .*db down`, err.Error())
}
