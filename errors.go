package goShield

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password. The two
	// cases are indistinguishable to callers.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned when a user lookup misses.
	ErrUserNotFound = errors.New("user not found")
	// ErrUnknownPrincipal is returned when a valid access token names a user that no longer exists.
	ErrUnknownPrincipal = errors.New("token subject not found")
	// ErrUserInactive is returned for users whose status is not active.
	ErrUserInactive = errors.New("user inactive")
	// ErrUserExists is returned when registering an email that is already taken.
	ErrUserExists = errors.New("user already exists")
	// ErrEmailNotVerified is returned when a verified email is required but missing.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrEmailAlreadyVerified is returned when resending verification to a verified user.
	ErrEmailAlreadyVerified = errors.New("email already verified")
	// ErrVerificationTokenRequired is returned for an empty verification token.
	ErrVerificationTokenRequired = errors.New("verification token required")
	// ErrInvalidVerificationToken is returned for an unknown, used or expired verification token.
	ErrInvalidVerificationToken = errors.New("invalid verification token")
	// ErrInvalidResetToken is returned for an unknown, used or expired reset token.
	ErrInvalidResetToken = errors.New("invalid reset token")
	// ErrRefreshTokenRequired is returned when refresh is called without a token.
	ErrRefreshTokenRequired = errors.New("refresh token required")
	// ErrNotAuthenticated is returned by authorization checks that run without a principal.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrAccountRequired is returned when the principal belongs to no account.
	ErrAccountRequired = errors.New("principal has no account")
	// ErrSuspiciousActivity is returned when a blocking abuse scan matched the request.
	ErrSuspiciousActivity = errors.New("suspicious activity detected")
	// ErrEmailDelivery is returned when the mailer fails on an explicit resend.
	ErrEmailDelivery = errors.New("email delivery failed")
	// ErrStoreUnavailable wraps user store backend failures.
	ErrStoreUnavailable = errors.New("user store unavailable")
	// ErrEngineNotReady is returned by methods called on a zero or closed Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ValidationError reports a rejected request field. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("validation failed")

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
