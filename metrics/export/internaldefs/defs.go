package internaldefs

import (
	goShield "github.com/MrEthical07/goShield"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goShield.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   goShield.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in MetricID order.
var CounterDefs = []CounterDef{
	{ID: goShield.MetricRegisterSuccess, Name: "goshield_register_success_total", Help: "Successful registrations."},
	{ID: goShield.MetricRegisterDuplicate, Name: "goshield_register_duplicate_total", Help: "Registrations rejected because the email is taken."},
	{ID: goShield.MetricLoginSuccess, Name: "goshield_login_success_total", Help: "Successful login attempts."},
	{ID: goShield.MetricLoginFailure, Name: "goshield_login_failure_total", Help: "Failed login attempts."},
	{ID: goShield.MetricLoginRateLimited, Name: "goshield_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: goShield.MetricRefreshSuccess, Name: "goshield_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: goShield.MetricRefreshFailure, Name: "goshield_refresh_failure_total", Help: "Rejected refresh tokens."},
	{ID: goShield.MetricLogout, Name: "goshield_logout_total", Help: "Single-token logouts."},
	{ID: goShield.MetricLogoutAll, Name: "goshield_logout_all_total", Help: "Logout-all operations."},
	{ID: goShield.MetricRateLimitHit, Name: "goshield_rate_limit_hit_total", Help: "Requests denied by any rate class."},
	{ID: goShield.MetricAbuseBlocked, Name: "goshield_abuse_blocked_total", Help: "Requests blocked by the abuse detector."},
	{ID: goShield.MetricAbuseFlagged, Name: "goshield_abuse_flagged_total", Help: "Suspicious requests logged without blocking."},
	{ID: goShield.MetricCSRFIssued, Name: "goshield_csrf_issued_total", Help: "Issued CSRF tokens."},
	{ID: goShield.MetricCSRFRejected, Name: "goshield_csrf_rejected_total", Help: "Rejected CSRF tokens."},
	{ID: goShield.MetricAuthorizationDenied, Name: "goshield_authorization_denied_total", Help: "Permission checks that denied access."},
	{ID: goShield.MetricMemberAdded, Name: "goshield_member_added_total", Help: "Members added to accounts."},
	{ID: goShield.MetricMemberRemoved, Name: "goshield_member_removed_total", Help: "Members removed from accounts."},
	{ID: goShield.MetricMemberRejected, Name: "goshield_member_rejected_total", Help: "Member additions rejected by capacity or role rules."},
	{ID: goShield.MetricEmailVerificationRequest, Name: "goshield_email_verification_request_total", Help: "Verification emails requested."},
	{ID: goShield.MetricEmailVerificationSuccess, Name: "goshield_email_verification_success_total", Help: "Successful email verifications."},
	{ID: goShield.MetricEmailVerificationFailure, Name: "goshield_email_verification_failure_total", Help: "Failed email verifications."},
	{ID: goShield.MetricPasswordResetRequest, Name: "goshield_password_reset_request_total", Help: "Password reset requests."},
	{ID: goShield.MetricPasswordResetConfirmSuccess, Name: "goshield_password_reset_confirm_success_total", Help: "Successful password resets."},
	{ID: goShield.MetricPasswordResetConfirmFailure, Name: "goshield_password_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goShield.MetricValidateLatency, Name: "goshield_authenticate_latency_seconds", Help: "Access token authentication latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "goshield_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// HistogramBounds are the upper bounds of the latency buckets, in Prometheus form.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramUpperBounds are HistogramBounds as seconds, without the +Inf bucket.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket for exporters without label support.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed bucket array, dropping extras.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
