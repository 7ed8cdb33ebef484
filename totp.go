package eduAuth

import (
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const totpSecretBytes = 20

// totpManager wraps RFC 6238 generation and validation. Only SHA1 is used,
// which is what authenticator apps implement universally.
type totpManager struct {
	config TwoFactorConfig
}

func newTOTPManager(cfg TwoFactorConfig) *totpManager {
	return &totpManager{config: cfg}
}

func (m *totpManager) digits() otp.Digits {
	if m.config.Digits == 8 {
		return otp.DigitsEight
	}
	return otp.DigitsSix
}

// Generate creates a fresh base32 secret for accountName and its otpauth URL.
func (m *totpManager) Generate(accountName string) (secret, url string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.config.Issuer,
		AccountName: accountName,
		Period:      m.config.Period,
		Digits:      m.digits(),
		Algorithm:   otp.AlgorithmSHA1,
		SecretSize:  totpSecretBytes,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// Validate reports whether code is valid for secret at now, allowing the
// configured skew in periods on either side. Malformed input is simply invalid.
func (m *totpManager) Validate(secret, code string, now time.Time) bool {
	code = strings.TrimSpace(code)
	if secret == "" || len(code) != m.config.Digits {
		return false
	}

	ok, err := totp.ValidateCustom(code, secret, now.UTC(), totp.ValidateOpts{
		Period:    m.config.Period,
		Skew:      m.config.Skew,
		Digits:    m.digits(),
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// Code returns the current code for secret; used to email codes to users who
// asked for them.
func (m *totpManager) Code(secret string, now time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, now.UTC(), totp.ValidateOpts{
		Period:    m.config.Period,
		Digits:    m.digits(),
		Algorithm: otp.AlgorithmSHA1,
	})
}
