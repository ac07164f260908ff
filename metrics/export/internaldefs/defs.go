package internaldefs

import (
	weeverytrip "github.com/NemnemForStudy/WeEveryTrip-sub000"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   weeverytrip.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   weeverytrip.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter exported for dispatcher drops.
const (
	AuditDroppedName = "weeverytrip_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

var CounterDefs = []CounterDef{
	{ID: weeverytrip.MetricDecorated, Name: "weeverytrip_requests_decorated_total", Help: "Requests sent with a bearer token."},
	{ID: weeverytrip.MetricDecoratedLegacy, Name: "weeverytrip_requests_decorated_legacy_total", Help: "Requests decorated with the legacy auth_token."},
	{ID: weeverytrip.MetricDecorateSkipped, Name: "weeverytrip_requests_undecorated_total", Help: "Requests sent without a bearer token."},
	{ID: weeverytrip.MetricRecoveryAttempt, Name: "weeverytrip_recovery_attempts_total", Help: "Authorization failures handed to recovery."},
	{ID: weeverytrip.MetricRefreshSuccess, Name: "weeverytrip_refresh_success_total", Help: "Successful token refreshes."},
	{ID: weeverytrip.MetricRefreshRejected, Name: "weeverytrip_refresh_rejected_total", Help: "Refresh calls rejected by the backend."},
	{ID: weeverytrip.MetricRefreshTransportError, Name: "weeverytrip_refresh_transport_error_total", Help: "Refresh calls that got no answer."},
	{ID: weeverytrip.MetricRefreshCoalesced, Name: "weeverytrip_refresh_coalesced_total", Help: "Failures resent with an already rotated token."},
	{ID: weeverytrip.MetricSelfRefreshRejected, Name: "weeverytrip_self_refresh_rejected_total", Help: "401 responses from the refresh endpoint itself."},
	{ID: weeverytrip.MetricRetryDepthExceeded, Name: "weeverytrip_retry_depth_exceeded_total", Help: "Requests that exhausted the retry depth."},
	{ID: weeverytrip.MetricNoRefreshToken, Name: "weeverytrip_no_refresh_token_total", Help: "Recoveries without a stored refresh token."},
	{ID: weeverytrip.MetricTokenPersistFailure, Name: "weeverytrip_token_persist_failure_total", Help: "Rotated pairs that could not be stored."},
	{ID: weeverytrip.MetricBodyNotReplayable, Name: "weeverytrip_body_not_replayable_total", Help: "Resends abandoned because the body could not be replayed."},
	{ID: weeverytrip.MetricAnonymousUnauthorized, Name: "weeverytrip_anonymous_unauthorized_total", Help: "401 responses to requests sent without credentials on purpose."},
	{ID: weeverytrip.MetricSessionLockFailure, Name: "weeverytrip_session_lock_failure_total", Help: "Recoveries abandoned because the shared session lock was unavailable."},
	{ID: weeverytrip.MetricSessionEstablished, Name: "weeverytrip_session_established_total", Help: "Sessions started from a login."},
	{ID: weeverytrip.MetricSessionInvalidated, Name: "weeverytrip_session_invalidated_total", Help: "Transitions to the logged-out state."},
	{ID: weeverytrip.MetricLogout, Name: "weeverytrip_logout_total", Help: "Explicit logout calls."},
}

var HistogramDefs = []HistogramDef{
	{ID: weeverytrip.MetricRefreshLatency, Name: "weeverytrip_refresh_latency_seconds", Help: "Refresh call latency histogram."},
}

// HistogramBounds are the upper bounds, in seconds, of the engine's latency buckets.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"+Inf",
}

// HistogramBoundValues mirrors HistogramBounds without the +Inf bucket.
var HistogramBoundValues = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
