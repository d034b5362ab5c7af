package internaldefs

import (
	goGate "github.com/MrEthical07/goGate"
)

// Namespace prefixes every exported series.
const Namespace = "gogate"

// CounterDef names one engine counter.
type CounterDef struct {
	ID   goGate.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   goGate.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goGate.MetricResetInitiated, Name: "gogate_reset_initiated_total", Help: "Password reset initiations, found and not-found phones alike."},
	{ID: goGate.MetricResetOTPValid, Name: "gogate_reset_otp_valid_total", Help: "Reset OTP verifications that matched."},
	{ID: goGate.MetricResetOTPInvalid, Name: "gogate_reset_otp_invalid_total", Help: "Reset OTP verifications that did not match."},
	{ID: goGate.MetricResetNotFound, Name: "gogate_reset_not_found_total", Help: "Reset operations on absent or expired sessions."},
	{ID: goGate.MetricResetTokenValid, Name: "gogate_reset_token_valid_total", Help: "Reset token checks that passed."},
	{ID: goGate.MetricResetTokenInvalid, Name: "gogate_reset_token_invalid_total", Help: "Reset token checks that failed."},
	{ID: goGate.MetricResetCompleted, Name: "gogate_reset_completed_total", Help: "Completed password resets."},
	{ID: goGate.MetricResetOTPAttemptsExceeded, Name: "gogate_reset_otp_attempts_exceeded_total", Help: "Reset OTP verifications rejected by the attempt cap."},
	{ID: goGate.MetricTokenIssued, Name: "gogate_token_issued_total", Help: "Signed access and refresh tokens."},
	{ID: goGate.MetricTokenVerifyFailed, Name: "gogate_token_verify_failed_total", Help: "Token verifications that failed."},
	{ID: goGate.MetricLoginSuccess, Name: "gogate_login_success_total", Help: "Successful logins."},
	{ID: goGate.MetricLoginFailure, Name: "gogate_login_failure_total", Help: "Failed logins."},
	{ID: goGate.MetricRefreshSuccess, Name: "gogate_refresh_success_total", Help: "Successful token refreshes."},
	{ID: goGate.MetricRefreshFailure, Name: "gogate_refresh_failure_total", Help: "Rejected token refreshes."},
	{ID: goGate.MetricAuthorizePermit, Name: "gogate_authorize_permit_total", Help: "Authorization decisions that permitted the request."},
	{ID: goGate.MetricAuthorizeDeny, Name: "gogate_authorize_deny_total", Help: "Authorization decisions that denied the request."},
	{ID: goGate.MetricAuthorizeAnonymous, Name: "gogate_authorize_anonymous_total", Help: "Authorization requests evaluated as the anonymous role."},
	{ID: goGate.MetricStoreError, Name: "gogate_store_error_total", Help: "Ephemeral store failures."},
}

var HistogramDefs = []HistogramDef{
	{ID: goGate.MetricAuthorizeLatency, Name: "gogate_authorize_latency_seconds", Help: "Authorization decision latency."},
}

// HistogramBounds are the bucket upper bounds in seconds, matching
// goGate.HistogramBucketBounds plus +Inf.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket in metric-name-safe form.
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

// AuditDroppedName is the counter of audit events lost to backpressure.
const AuditDroppedName = "gogate_audit_dropped_total"

// NormalizeBuckets copies raw into a fixed-size array. Missing buckets are zero.
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
