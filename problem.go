package goShield

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/MrEthical07/goShield/csrf"
	"github.com/MrEthical07/goShield/membership"
	"github.com/MrEthical07/goShield/password"
	"github.com/MrEthical07/goShield/ratelimit"
	"github.com/MrEthical07/goShield/tokens"
)

// Code is the machine-readable error identifier sent to clients.
type Code string

const (
	CodeNoToken              Code = "NO_TOKEN"
	CodeInvalidToken         Code = "INVALID_TOKEN"
	CodeTokenExpired         Code = "TOKEN_EXPIRED"
	CodeUserNotFound         Code = "USER_NOT_FOUND"
	CodeUserInactive         Code = "USER_INACTIVE"
	CodeEmailNotVerified     Code = "EMAIL_NOT_VERIFIED"
	CodeInvalidCredentials   Code = "INVALID_CREDENTIALS"
	CodeInvalidRefreshToken  Code = "INVALID_REFRESH_TOKEN"
	CodeRefreshTokenRequired Code = "REFRESH_TOKEN_REQUIRED"
	CodeNotAuthenticated     Code = "NOT_AUTHENTICATED"

	CodeCSRFTokenMissing Code = "CSRF_TOKEN_MISSING"
	CodeCSRFTokenInvalid Code = "CSRF_TOKEN_INVALID"

	CodeRateLimitExceeded   Code = "RATE_LIMIT_EXCEEDED"
	CodeSuspiciousActivity  Code = "SUSPICIOUS_ACTIVITY_DETECTED"
	CodeCapacityExceeded    Code = "CAPACITY_EXCEEDED"
	CodeRoleConflict        Code = "ROLE_CONFLICT"
	CodeAlreadyMember       Code = "ALREADY_MEMBER"
	CodeMemberNotFound      Code = "MEMBER_NOT_FOUND"
	CodeCannotRemoveOwner   Code = "CANNOT_REMOVE_OWNER"
	CodeOwnershipRequired   Code = "OWNERSHIP_REQUIRED"
	CodeInsufficientPerms   Code = "INSUFFICIENT_PERMISSIONS"
	CodeAccountInactive     Code = "ACCOUNT_INACTIVE"
	CodeAccountNotFound     Code = "ACCOUNT_NOT_FOUND"
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeUserExists          Code = "USER_EXISTS"
	CodeVerificationMissing Code = "VERIFICATION_TOKEN_REQUIRED"
	CodeInvalidVerification Code = "INVALID_VERIFICATION_TOKEN"
	CodeEmailVerified       Code = "EMAIL_ALREADY_VERIFIED"
	CodeInvalidResetToken   Code = "INVALID_RESET_TOKEN"
	CodeEmailSend           Code = "EMAIL_SEND_ERROR"
	CodePayloadTooLarge     Code = "PAYLOAD_TOO_LARGE"
	CodeUnsupportedMedia    Code = "UNSUPPORTED_MEDIA_TYPE"
	CodeNotFound            Code = "NOT_FOUND"
	CodeInternal            Code = "INTERNAL_ERROR"
)

// Problem is an error rendered for a client: status, code, message and optional extra
// envelope fields. It implements error so handlers can return it directly.
type Problem struct {
	Status  int
	Code    Code
	Message string
	Extra   map[string]any
	// Cause is the underlying error. It is logged, never sent.
	Cause error
}

func (p *Problem) Error() string {
	if p.Cause != nil {
		return string(p.Code) + ": " + p.Cause.Error()
	}
	return string(p.Code) + ": " + p.Message
}

func (p *Problem) Unwrap() error { return p.Cause }

// Internal reports whether the problem hides a server-side failure.
func (p *Problem) Internal() bool { return p.Status >= http.StatusInternalServerError }

// NewProblem builds a Problem without a cause.
func NewProblem(status int, code Code, message string) *Problem {
	return &Problem{Status: status, Code: code, Message: message}
}

// With returns a copy of p carrying an extra envelope field.
func (p *Problem) With(key string, value any) *Problem {
	out := *p
	out.Extra = make(map[string]any, len(p.Extra)+1)
	for k, v := range p.Extra {
		out.Extra[k] = v
	}
	out.Extra[key] = value
	return &out
}

// RetryAfterSeconds rounds d up to whole seconds, never below one.
func RetryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

type mapping struct {
	target  error
	status  int
	code    Code
	message string
}

var problemTable = []mapping{
	{tokens.ErrNoToken, http.StatusUnauthorized, CodeNoToken, "Access token not provided."},
	{tokens.ErrTokenExpired, http.StatusUnauthorized, CodeTokenExpired, "Access token expired."},
	{tokens.ErrInvalidToken, http.StatusUnauthorized, CodeInvalidToken, "Invalid access token."},
	{tokens.ErrUnknownRefreshToken, http.StatusUnauthorized, CodeInvalidRefreshToken, "Invalid refresh token."},
	{tokens.ErrRefreshExpired, http.StatusUnauthorized, CodeInvalidRefreshToken, "Invalid refresh token."},
	{ErrRefreshTokenRequired, http.StatusBadRequest, CodeRefreshTokenRequired, "Refresh token is required."},
	{ErrUnknownPrincipal, http.StatusUnauthorized, CodeUserNotFound, "User not found."},
	{ErrNotAuthenticated, http.StatusUnauthorized, CodeNotAuthenticated, "Authentication required."},
	{ErrInvalidCredentials, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid credentials."},
	{ErrUserInactive, http.StatusForbidden, CodeUserInactive, "User is inactive or suspended."},
	{ErrEmailNotVerified, http.StatusForbidden, CodeEmailNotVerified, "Email address not verified."},
	{ErrUserNotFound, http.StatusNotFound, CodeUserNotFound, "User not found."},
	{ErrUserExists, http.StatusBadRequest, CodeUserExists, "A user with this email already exists."},
	{ErrEmailAlreadyVerified, http.StatusBadRequest, CodeEmailVerified, "Email already verified."},
	{ErrVerificationTokenRequired, http.StatusBadRequest, CodeVerificationMissing, "Verification token is required."},
	{ErrInvalidVerificationToken, http.StatusBadRequest, CodeInvalidVerification, "Invalid verification token."},
	{ErrInvalidResetToken, http.StatusBadRequest, CodeInvalidResetToken, "Invalid or expired reset token."},
	{ErrSuspiciousActivity, http.StatusBadRequest, CodeSuspiciousActivity, "Suspicious activity detected."},
	{ErrEmailDelivery, http.StatusInternalServerError, CodeEmailSend, "Could not send email."},
	{password.ErrWeakPassword, http.StatusBadRequest, CodeValidation, "Password does not meet the strength policy."},
	{password.ErrPasswordTooLong, http.StatusBadRequest, CodeValidation, "Password is too long."},

	{csrf.ErrTokenMissing, http.StatusForbidden, CodeCSRFTokenMissing, "CSRF token missing."},
	{csrf.ErrTokenInvalid, http.StatusForbidden, CodeCSRFTokenInvalid, "Invalid CSRF token."},

	{membership.ErrCapacityExceeded, http.StatusBadRequest, CodeCapacityExceeded, "The account has reached its member limit."},
	{membership.ErrRoleConflict, http.StatusBadRequest, CodeRoleConflict, "That role is already taken in this account."},
	{membership.ErrAlreadyMember, http.StatusBadRequest, CodeAlreadyMember, "User is already a member of this account."},
	{membership.ErrInvalidRole, http.StatusBadRequest, CodeValidation, "Invalid role."},
	{membership.ErrMemberNotFound, http.StatusNotFound, CodeMemberNotFound, "Member not found."},
	{membership.ErrCannotRemoveOwner, http.StatusBadRequest, CodeCannotRemoveOwner, "The account owner cannot be removed."},
	{membership.ErrOwnershipRequired, http.StatusForbidden, CodeOwnershipRequired, "Only the account owner can do this."},
	{membership.ErrAccountInactive, http.StatusForbidden, CodeAccountInactive, "Account inactive or trial expired."},
	{membership.ErrAccountNotFound, http.StatusNotFound, CodeAccountNotFound, "Account not found."},
	{ErrAccountRequired, http.StatusForbidden, CodeAccountNotFound, "No account is associated with this user."},
}

// ProblemFor maps err to its client-facing Problem. Errors outside the taxonomy become a
// generic 500 INTERNAL_ERROR whose Cause keeps the original error for logging.
func ProblemFor(err error) *Problem {
	if err == nil {
		return nil
	}

	var p *Problem
	if errors.As(err, &p) {
		return p
	}

	var exceeded *ratelimit.ExceededError
	if errors.As(err, &exceeded) {
		code := Code(exceeded.Code)
		if code == "" {
			code = CodeRateLimitExceeded
		}
		msg := exceeded.Message
		if msg == "" {
			msg = "Too many requests. Try again later."
		}
		return &Problem{
			Status:  http.StatusTooManyRequests,
			Code:    code,
			Message: msg,
			Extra:   map[string]any{"retryAfter": RetryAfterSeconds(exceeded.RetryAfter)},
			Cause:   err,
		}
	}

	var denied *membership.DeniedError
	if errors.As(err, &denied) {
		extra := map[string]any{"requiredPermission": denied.Permission}
		if denied.Role != "" {
			extra["userRole"] = denied.Role
		}
		return &Problem{
			Status:  http.StatusForbidden,
			Code:    CodeInsufficientPerms,
			Message: "Insufficient permissions.",
			Extra:   extra,
			Cause:   err,
		}
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		return &Problem{
			Status:  http.StatusBadRequest,
			Code:    CodeValidation,
			Message: "Invalid request data.",
			Extra:   map[string]any{"field": verr.Field, "reason": verr.Reason},
			Cause:   err,
		}
	}

	for _, m := range problemTable {
		if errors.Is(err, m.target) {
			return &Problem{Status: m.status, Code: m.code, Message: m.message, Cause: err}
		}
	}

	if errors.Is(err, membership.ErrInsufficientPermissions) {
		return &Problem{Status: http.StatusForbidden, Code: CodeInsufficientPerms, Message: "Insufficient permissions.", Cause: err}
	}

	return &Problem{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "Internal server error.", Cause: err}
}
