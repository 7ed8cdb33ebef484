package eduAuth

import (
	"errors"
	"strings"
)

// Code is the stable, caller-facing identifier of an authentication failure.
type Code string

const (
	CodeInvalidInput            Code = "INVALID_INPUT"
	CodeInvalidCredentials      Code = "INVALID_CREDENTIALS"
	CodeAccountLocked           Code = "ACCOUNT_LOCKED"
	CodeAccountDisabled         Code = "ACCOUNT_DISABLED"
	CodeEmailNotVerified        Code = "EMAIL_NOT_VERIFIED"
	CodeInvalidOrExpiredToken   Code = "INVALID_OR_EXPIRED_TOKEN"
	CodeInvalidRefreshToken     Code = "INVALID_REFRESH_TOKEN"
	CodeInvalidTwoFactorCode    Code = "INVALID_TWO_FACTOR_CODE"
	CodeTwoFactorNotEnabled     Code = "TWO_FACTOR_NOT_ENABLED"
	CodeTwoFactorAlreadyEnabled Code = "TWO_FACTOR_ALREADY_ENABLED"
	CodeAlreadyExists           Code = "ALREADY_EXISTS"
	CodeNotFound                Code = "NOT_FOUND"
	CodeUnauthorized            Code = "UNAUTHORIZED"
	CodeRateLimited             Code = "RATE_LIMITED"
)

// Error is a typed authentication failure. Sentinel values below are compared
// with errors.Is; the message is safe to return to end users.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	// ErrInvalidInput is returned when a request fails validation before any state is touched.
	ErrInvalidInput = &Error{Code: CodeInvalidInput, Message: "invalid input"}
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = &Error{Code: CodeInvalidCredentials, Message: "invalid email or password"}
	// ErrAccountLocked is returned while lockedUntil is in the future.
	ErrAccountLocked = &Error{Code: CodeAccountLocked, Message: "account is temporarily locked"}
	// ErrAccountDisabled is returned for administratively disabled accounts.
	ErrAccountDisabled = &Error{Code: CodeAccountDisabled, Message: "account is disabled"}
	// ErrEmailNotVerified is returned when login is attempted before email verification.
	ErrEmailNotVerified = &Error{Code: CodeEmailNotVerified, Message: "email address is not verified"}
	// ErrInvalidOrExpiredToken is shared by email verification and password reset.
	ErrInvalidOrExpiredToken = &Error{Code: CodeInvalidOrExpiredToken, Message: "invalid or expired token"}
	// ErrInvalidRefreshToken covers unknown, expired, rotated and orphaned refresh tokens.
	ErrInvalidRefreshToken = &Error{Code: CodeInvalidRefreshToken, Message: "invalid refresh token"}
	// ErrInvalidTwoFactorCode is returned for a wrong one-time code or a missing 2FA challenge.
	ErrInvalidTwoFactorCode = &Error{Code: CodeInvalidTwoFactorCode, Message: "invalid two-factor code"}
	// ErrTwoFactorNotEnabled is returned when 2FA is not configured for the account.
	ErrTwoFactorNotEnabled = &Error{Code: CodeTwoFactorNotEnabled, Message: "two-factor authentication is not enabled"}
	// ErrTwoFactorAlreadyEnabled is returned by SetupTwoFactor on an enrolled account.
	ErrTwoFactorAlreadyEnabled = &Error{Code: CodeTwoFactorAlreadyEnabled, Message: "two-factor authentication is already enabled"}
	// ErrAlreadyExists is returned on duplicate registration.
	ErrAlreadyExists = &Error{Code: CodeAlreadyExists, Message: "an account with this email already exists"}
	// ErrNotFound is returned by account-addressed operations for unknown ids.
	ErrNotFound = &Error{Code: CodeNotFound, Message: "account not found"}
	// ErrUnauthorized is returned when an access token fails validation.
	ErrUnauthorized = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	// ErrRateLimited is returned by limiter-guarded operations.
	ErrRateLimited = &Error{Code: CodeRateLimited, Message: "too many attempts, try again later"}
)

// Repository contract errors. AccountRepository implementations return these so
// the engine can translate storage outcomes without knowing the backend.
var (
	// ErrAccountNotFound is returned by lookups that match no row.
	ErrAccountNotFound = errors.New("account not found")
	// ErrDuplicateEmail is returned by Create when the email is already taken.
	ErrDuplicateEmail = errors.New("duplicate account email")
	// ErrTokenConsumed is returned by ConsumeToken when the token was already
	// used or replaced.
	ErrTokenConsumed = errors.New("single-use token already consumed")
)

// ValidationError lists the request fields that failed validation. It matches
// ErrInvalidInput under errors.Is.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrInvalidInput.Message
	}
	return ErrInvalidInput.Message + ": " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// CodeOf extracts the failure code from err, or "" for untyped errors.
func CodeOf(err error) Code {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return CodeInvalidInput
	}
	return ""
}
