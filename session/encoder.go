package session

import (
	"encoding/json"
	"errors"
)

const maxMarkerBytes = 4096

// ErrCorruptRecord is returned when a stored record cannot be decoded.
var ErrCorruptRecord = errors.New("session record corrupt")

// Encode serializes a pending marker in its persisted JSON shape.
func Encode(p *PendingTwoFactor) ([]byte, error) {
	if p == nil {
		return nil, errors.New("nil pending marker")
	}
	if p.Token == "" {
		return nil, errors.New("pending marker requires a token")
	}
	if len(p.Email) > 254 {
		return nil, errors.New("email too long")
	}

	out := *p
	out.RequiresTwoFactor = true
	return json.Marshal(&out)
}

// Decode parses a pending marker. Markers written by other services sharing
// the key space are accepted as long as they carry a token and the
// requiresTwoFactor flag.
func Decode(data []byte) (*PendingTwoFactor, error) {
	if len(data) == 0 || len(data) > maxMarkerBytes {
		return nil, ErrCorruptRecord
	}

	var p PendingTwoFactor
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, ErrCorruptRecord
	}
	if !p.RequiresTwoFactor || p.Token == "" {
		return nil, ErrCorruptRecord
	}
	return &p, nil
}
