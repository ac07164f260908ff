package flows

import (
	"context"
	"net/url"
	"time"
)

// RecoveryOutcome classifies the result of one authentication recovery.
type RecoveryOutcome int

const (
	// RecoveryRefreshed means a new pair was fetched and persisted.
	RecoveryRefreshed RecoveryOutcome = iota
	// RecoveryCoalesced means another caller already rotated the token.
	RecoveryCoalesced
	RecoverySessionInvalid
	RecoverySelfRefresh
	RecoveryDepthExceeded
	RecoveryNoRefreshToken
	RecoveryRejected
	RecoveryTransport
	RecoveryPersist
)

var outcomeNames = [...]string{
	RecoveryRefreshed:      "refreshed",
	RecoveryCoalesced:      "coalesced",
	RecoverySessionInvalid: "session_invalid",
	RecoverySelfRefresh:    "self_refresh",
	RecoveryDepthExceeded:  "depth_exceeded",
	RecoveryNoRefreshToken: "no_refresh_token",
	RecoveryRejected:       "rejected",
	RecoveryTransport:      "transport",
	RecoveryPersist:        "persist",
}

func (o RecoveryOutcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// Resend reports whether the failed request should be retried with Token.
func (o RecoveryOutcome) Resend() bool {
	return o == RecoveryRefreshed || o == RecoveryCoalesced
}

// Teardown reports whether the session must be cleared and invalidated.
// RecoverySessionInvalid is already torn down.
func (o RecoveryOutcome) Teardown() bool {
	return !o.Resend() && o != RecoverySessionInvalid
}

// RecoveryInput describes the failed request.
type RecoveryInput struct {
	URL       *url.URL
	UsedToken string
	Depth     int
}

// RecoveryDeps captures recovery flow dependencies. The caller must hold the
// recovery lock for the whole call.
type RecoveryDeps struct {
	SessionValid      func() bool
	IsRefreshEndpoint func(*url.URL) bool
	MaxDepth          int
	CurrentAccess     func(context.Context) (string, error)
	RefreshToken      func(context.Context) (string, error)
	Refresh           func(ctx context.Context, refreshToken string) (access, refresh string, err error)
	IsRejected        func(error) bool
	Persist           func(ctx context.Context, access, refresh string) error
	Now               func() time.Time
}

// RecoveryResult carries the token to resend with or the failure.
type RecoveryResult struct {
	Outcome RecoveryOutcome
	Token   string
	Err     error
	// Refreshed is true when the refresh endpoint was called.
	Refreshed      bool
	RefreshLatency time.Duration
}

// RunRecovery decides how to react to one 401. Checks run in a fixed order:
// session state, self-refresh, depth, stale token, refresh token presence, refresh.
func RunRecovery(ctx context.Context, in RecoveryInput, deps RecoveryDeps) RecoveryResult {
	if deps.SessionValid != nil && !deps.SessionValid() {
		return RecoveryResult{Outcome: RecoverySessionInvalid}
	}

	if in.URL != nil && deps.IsRefreshEndpoint(in.URL) {
		return RecoveryResult{Outcome: RecoverySelfRefresh}
	}

	if in.Depth >= deps.MaxDepth {
		return RecoveryResult{Outcome: RecoveryDepthExceeded}
	}

	// A read failure here only disables the fast path.
	current, err := deps.CurrentAccess(ctx)
	if err == nil && current != "" && current != in.UsedToken {
		return RecoveryResult{Outcome: RecoveryCoalesced, Token: current}
	}

	refreshToken, err := deps.RefreshToken(ctx)
	if err != nil || refreshToken == "" {
		return RecoveryResult{Outcome: RecoveryNoRefreshToken, Err: err}
	}

	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}
	start := now()
	access, rotated, err := deps.Refresh(ctx, refreshToken)
	latency := now().Sub(start)
	if err != nil {
		outcome := RecoveryTransport
		if deps.IsRejected != nil && deps.IsRejected(err) {
			outcome = RecoveryRejected
		}
		return RecoveryResult{Outcome: outcome, Err: err, Refreshed: true, RefreshLatency: latency}
	}

	if err := deps.Persist(ctx, access, rotated); err != nil {
		return RecoveryResult{Outcome: RecoveryPersist, Err: err, Refreshed: true, RefreshLatency: latency}
	}

	return RecoveryResult{
		Outcome:        RecoveryRefreshed,
		Token:          access,
		Refreshed:      true,
		RefreshLatency: latency,
	}
}
