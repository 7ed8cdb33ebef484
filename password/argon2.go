package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// DefaultMaxPasswordBytes caps the input size when Config.MaxPasswordBytes is zero.
const DefaultMaxPasswordBytes = 1024

// Floors enforced on both the configuration and every decoded hash.
const (
	floorMemoryKiB = 8 * 1024
	floorSaltBytes = 16
	floorKeyBytes  = 16
)

const (
	hashPrefix     = "$argon2id$"
	hashFieldCount = 6
	paramFormat    = "m=%d,t=%d,p=%d"
	versionFormat  = "v=%d"
)

// Config holds argon2id cost parameters.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// MaxPasswordBytes bounds the plaintext accepted by Hash and Verify.
	MaxPasswordBytes int
}

var (
	// ErrEmptyPassword is returned by Hash for an empty secret.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrPasswordTooLong is returned when the plaintext exceeds MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
	// ErrMalformedHash is returned for stored hashes this package cannot read.
	ErrMalformedHash = errors.New("malformed argon2id hash")
)

// cost is the part of a hash that decides how expensive it was to compute.
type cost struct {
	memory  uint32
	passes  uint32
	threads uint8
	keyLen  uint32
}

func (c cost) derive(secret string, salt []byte) []byte {
	return argon2.IDKey([]byte(secret), salt, c.passes, c.memory, c.threads, c.keyLen)
}

// weakerThan reports whether c falls short of target in any dimension.
func (c cost) weakerThan(target cost) bool {
	return c.memory < target.memory ||
		c.passes < target.passes ||
		c.threads < target.threads ||
		c.keyLen != target.keyLen
}

// storedHash is a decoded $argon2id$ string.
type storedHash struct {
	cost
	salt []byte
	key  []byte
}

// Argon2 hashes and verifies account secrets as argon2id PHC strings
// (unpadded base64 salt and key). It is safe for concurrent use.
type Argon2 struct {
	target   cost
	saltLen  uint32
	maxBytes int
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	switch {
	case cfg.Memory < floorMemoryKiB:
		return nil, fmt.Errorf("password memory must be >= %d KiB", floorMemoryKiB)
	case cfg.Time < 1:
		return nil, errors.New("password time must be >= 1")
	case cfg.Parallelism < 1:
		return nil, errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < floorSaltBytes:
		return nil, fmt.Errorf("password salt length must be >= %d", floorSaltBytes)
	case cfg.KeyLength < floorKeyBytes:
		return nil, fmt.Errorf("password key length must be >= %d", floorKeyBytes)
	case cfg.MaxPasswordBytes < 0:
		return nil, errors.New("password max bytes must be >= 0")
	}

	maxBytes := cfg.MaxPasswordBytes
	if maxBytes == 0 {
		maxBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{
		target: cost{
			memory:  cfg.Memory,
			passes:  cfg.Time,
			threads: cfg.Parallelism,
			keyLen:  cfg.KeyLength,
		},
		saltLen:  cfg.SaltLength,
		maxBytes: maxBytes,
	}, nil
}

// Hash derives a key for password under a fresh salt. The bytes are used as
// given, with no Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > a.maxBytes {
		return "", ErrPasswordTooLong
	}

	salt := make([]byte, a.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	return encode(storedHash{cost: a.target, salt: salt, key: a.target.derive(password, salt)}), nil
}

// Verify reports whether password matches encoded in constant time. A hash
// that cannot be decoded is an error; a mismatch is (false, nil).
func (a *Argon2) Verify(password, encoded string) (bool, error) {
	if len(password) > a.maxBytes {
		return false, ErrPasswordTooLong
	}
	h, err := decode(encoded)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(h.derive(password, h.salt), h.key) == 1, nil
}

// NeedsUpgrade reports whether encoded was computed with a weaker cost than
// the hasher is configured for, or with a different key length.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	h, err := decode(encoded)
	if err != nil {
		return false, err
	}
	return h.weakerThan(a.target), nil
}

func encode(h storedHash) string {
	var b strings.Builder
	b.WriteString(hashPrefix)
	fmt.Fprintf(&b, versionFormat+"$"+paramFormat+"$", argon2.Version, h.memory, h.passes, h.threads)
	b.WriteString(base64.RawStdEncoding.EncodeToString(h.salt))
	b.WriteByte('$')
	b.WriteString(base64.RawStdEncoding.EncodeToString(h.key))
	return b.String()
}

func decode(encoded string) (storedHash, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != hashFieldCount || !strings.HasPrefix(encoded, hashPrefix) {
		return storedHash{}, ErrMalformedHash
	}

	var version int
	if !scanExact(fields[2], versionFormat, &version) {
		return storedHash{}, fmt.Errorf("%w: bad version field", ErrMalformedHash)
	}
	if version != argon2.Version {
		return storedHash{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedHash, version)
	}

	var h storedHash
	if !scanExact(fields[3], paramFormat, &h.memory, &h.passes, &h.threads) {
		return storedHash{}, fmt.Errorf("%w: bad parameter field", ErrMalformedHash)
	}
	if h.memory < floorMemoryKiB || h.passes < 1 || h.threads < 1 {
		return storedHash{}, fmt.Errorf("%w: cost below floor", ErrMalformedHash)
	}

	var err error
	if h.salt, err = decodeSegment(fields[4]); err != nil || len(h.salt) < floorSaltBytes {
		return storedHash{}, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}
	if h.key, err = decodeSegment(fields[5]); err != nil || len(h.key) == 0 {
		return storedHash{}, fmt.Errorf("%w: bad key", ErrMalformedHash)
	}
	h.keyLen = uint32(len(h.key))
	return h, nil
}

// scanExact parses field with format and rejects anything that does not
// print back identically, such as signs, leading zeros or trailing bytes.
func scanExact(field, format string, args ...any) bool {
	if n, err := fmt.Sscanf(field, format, args...); err != nil || n != len(args) {
		return false
	}
	values := make([]any, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case *int:
			values[i] = *v
		case *uint32:
			values[i] = *v
		case *uint8:
			values[i] = *v
		}
	}
	return fmt.Sprintf(format, values...) == field
}

// decodeSegment accepts both unpadded and padded base64.
func decodeSegment(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
