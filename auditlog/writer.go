package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/MrEthical07/eduAuth"
)

// JSONWriter writes one JSON object per line.
type JSONWriter struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{writer: w}
}

func (s *JSONWriter) Log(_ context.Context, entry eduAuth.AuditEntry) error {
	if s == nil || s.writer == nil {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.writer.Write(data); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}
