package eduAuth

import "context"

// NoOpRecorder discards every entry.
type NoOpRecorder struct{}

// Log implements [AuditRecorder].
func (NoOpRecorder) Log(context.Context, AuditEntry) error { return nil }

// ChannelRecorder forwards entries to a buffered channel. Useful for tests
// and for callers that fan entries out themselves.
type ChannelRecorder struct {
	entries chan AuditEntry
}

// NewChannelRecorder returns a recorder with the given buffer size.
func NewChannelRecorder(buffer int) *ChannelRecorder {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelRecorder{
		entries: make(chan AuditEntry, buffer),
	}
}

// Log blocks until the entry is buffered or ctx is done.
func (r *ChannelRecorder) Log(ctx context.Context, entry AuditEntry) error {
	select {
	case r.entries <- entry:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries returns the receive side of the channel.
func (r *ChannelRecorder) Entries() <-chan AuditEntry {
	return r.entries
}
