package goShield

import (
	"context"
	"strings"
)

const (
	auditEventRegister                 = "register"
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventRefreshSuccess           = "refresh_success"
	auditEventRefreshInvalid           = "refresh_invalid"
	auditEventLogout                   = "logout"
	auditEventLogoutAll                = "logout_all"
	auditEventEmailVerificationRequest = "email_verification_request"
	auditEventEmailVerificationConfirm = "email_verification_confirm"
	auditEventPasswordResetRequest     = "password_reset_request"
	auditEventPasswordResetConfirm     = "password_reset_confirm"
	auditEventRateLimitTriggered       = "rate_limit_triggered"
	auditEventAbuseBlocked             = "abuse_blocked"
	auditEventAbuseFlagged             = "abuse_flagged"
	auditEventCSRFRejected             = "csrf_rejected"
	auditEventAuthorizationDenied      = "authorization_denied"
	auditEventMemberAdded              = "member_added"
	auditEventMemberRemoved            = "member_removed"
)

// AuditErrorCode is the error label carried by failed audit events. It is the lower-cased
// client error code, so audit trails and responses line up.
type AuditErrorCode string

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}
	return AuditErrorCode(strings.ToLower(string(ProblemFor(err).Code)))
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	accountID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		EventType: eventType,
		RequestID: RequestID(ctx),
		UserID:    userID,
		AccountID: accountID,
		IP:        ClientIP(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}
