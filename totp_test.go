package eduAuth

import (
	"encoding/base32"
	"net/url"
	"testing"
	"time"
)

func testTOTPManager(digits int, skew uint) *totpManager {
	return newTOTPManager(TwoFactorConfig{
		Issuer: "eduauth",
		Period: 30,
		Skew:   skew,
		Digits: digits,
	})
}

func TestTOTPValidateRFCVectorsSHA1(t *testing.T) {
	m := testTOTPManager(8, 0)
	secret := base32.StdEncoding.EncodeToString([]byte("12345678901234567890"))
	cases := []struct {
		ts   int64
		code string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
		{20000000000, "65353130"},
	}

	for _, tc := range cases {
		if !m.Validate(secret, tc.code, time.Unix(tc.ts, 0)) {
			t.Fatalf("SHA1 vector failed at t=%d", tc.ts)
		}
	}
}

func TestTOTPGenerateProducesUsableSecret(t *testing.T) {
	m := testTOTPManager(6, 1)
	secret, rawURL, err := m.Generate("ada@example.com")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse otpauth url: %v", err)
	}
	if u.Scheme != "otpauth" || u.Host != "totp" {
		t.Fatalf("unexpected otpauth url %q", rawURL)
	}
	if u.Query().Get("issuer") != "eduauth" || u.Query().Get("secret") != secret {
		t.Fatalf("unexpected otpauth query %q", u.RawQuery)
	}

	now := time.Now()
	code, err := m.Code(secret, now)
	if err != nil {
		t.Fatalf("Code: %v", err)
	}
	if !m.Validate(secret, code, now) {
		t.Fatal("expected freshly generated code to validate")
	}
}

func TestTOTPSkewWindow(t *testing.T) {
	m := testTOTPManager(6, 1)
	secret, _, err := m.Generate("skew@example.com")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	base := time.Unix(1700000010, 0)
	code, err := m.Code(secret, base)
	if err != nil {
		t.Fatalf("Code: %v", err)
	}

	if !m.Validate(secret, code, base.Add(30*time.Second)) {
		t.Fatal("expected code from previous step to validate within skew")
	}
	if m.Validate(secret, code, base.Add(90*time.Second)) {
		t.Fatal("expected code three steps old to be rejected")
	}
}

func TestTOTPRejectsMalformedInput(t *testing.T) {
	m := testTOTPManager(6, 1)
	secret, _, err := m.Generate("bad@example.com")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	for _, code := range []string{"", "12345", "1234567", "abcdef"} {
		if m.Validate(secret, code, time.Now()) {
			t.Fatalf("expected %q to be rejected", code)
		}
	}
	if m.Validate("", "123456", time.Now()) {
		t.Fatal("expected empty secret to be rejected")
	}
}
