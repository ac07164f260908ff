package weeverytrip

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/NemnemForStudy/WeEveryTrip-sub000/internal/flows"
	"github.com/NemnemForStudy/WeEveryTrip-sub000/refresh"
	"github.com/NemnemForStudy/WeEveryTrip-sub000/tokenstore"
)

// Authenticate reacts to a 401. It returns the request to resend, or nil and the
// reason when the request must not be retried.
//
// Calls are serialized on the engine's recovery lock, so concurrent 401s cause
// at most one refresh: later callers find the token already rotated and are
// resent with it. Any terminal failure clears the store and invalidates the
// session before returning. A 401 on a request marked with [WithoutAuth] is
// returned to the caller as [ErrAnonymousRequest] without touching the session.
// Authenticate never panics on bad input.
func (e *Engine) Authenticate(attempt *RecoveryAttempt) (*http.Request, error) {
	if e == nil || e.store == nil || e.session == nil {
		return nil, ErrEngineNotReady
	}
	req := attempt.request()
	if req == nil {
		return nil, ErrInvalidAttempt
	}
	if withoutAuthFromContext(req.Context()) {
		e.metricInc(MetricAnonymousUnauthorized)
		e.logger.Debug().Str("method", req.Method).Str("path", req.URL.Path).Msg("401 on anonymous request, not retrying")
		return nil, ErrAnonymousRequest
	}
	e.metricInc(MetricRecoveryAttempt)

	// Refresh.Timeout bounds the refresh, not the caller's context.
	ctx := context.WithoutCancel(req.Context())
	depth := attempt.Depth()

	res, err := e.recover(ctx, attempt, req, depth)
	if err != nil {
		return nil, err
	}

	next, err := rebuild(req, res.Token)
	if err != nil {
		e.metricInc(MetricBodyNotReplayable)
		e.logger.Warn().Str("method", req.Method).Str("path", req.URL.Path).Msg("cannot resend request: body is not replayable")
		e.emitAudit(ctx, auditEventResendAborted, false, attempt, depth, err, nil)
		return nil, err
	}
	return next, nil
}

func (e *Engine) recover(ctx context.Context, attempt *RecoveryAttempt, req *http.Request, depth int) (flows.RecoveryResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if locker, ok := e.store.(tokenstore.Locker); ok && e.session.IsValid() {
		lockCtx, cancel := context.WithTimeout(ctx, e.config.Refresh.Timeout)
		unlock, err := locker.Lock(lockCtx)
		cancel()
		if err != nil {
			e.metricInc(MetricSessionLockFailure)
			e.logger.Warn().Err(err).Str("method", req.Method).Str("path", req.URL.Path).Msg("taking session lock failed, not retrying")
			return flows.RecoveryResult{}, fmt.Errorf("%w: %v", ErrSessionLock, err)
		}
		defer unlock()
	}

	res := flows.RunRecovery(ctx, flows.RecoveryInput{
		URL:       req.URL,
		UsedToken: attempt.usedToken(),
		Depth:     depth,
	}, e.recoveryDeps())

	if res.Refreshed {
		e.metrics.Observe(MetricRefreshLatency, res.RefreshLatency)
	}

	log := e.logger.With().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("depth", depth).
		Logger()

	switch res.Outcome {
	case flows.RecoveryRefreshed:
		e.metricInc(MetricRefreshSuccess)
		log.Info().Dur("latency", res.RefreshLatency).Msg("access token refreshed")
		e.emitAudit(ctx, auditEventRefreshSuccess, true, attempt, depth, nil, nil)
		return res, nil
	case flows.RecoveryCoalesced:
		e.metricInc(MetricRefreshCoalesced)
		log.Debug().Msg("token already rotated, resending with current token")
		e.emitAudit(ctx, auditEventRefreshCoalesced, true, attempt, depth, nil, nil)
		return res, nil
	case flows.RecoverySessionInvalid:
		log.Debug().Msg("session already invalid, not retrying")
		e.retryClearLocked(ctx)
		return res, ErrSessionInvalid
	}

	err := recoveryError(res, depth)
	switch res.Outcome {
	case flows.RecoverySelfRefresh:
		e.metricInc(MetricSelfRefreshRejected)
		log.Warn().Msg("refresh endpoint rejected its own request, logging out")
		e.emitAudit(ctx, auditEventLoopDetected, false, attempt, depth, err, func() map[string]string {
			return map[string]string{"kind": "self_refresh"}
		})
	case flows.RecoveryDepthExceeded:
		e.metricInc(MetricRetryDepthExceeded)
		log.Warn().Int("max_depth", e.config.Refresh.MaxRetryDepth).Msg("retry depth exhausted, logging out")
		e.emitAudit(ctx, auditEventLoopDetected, false, attempt, depth, err, func() map[string]string {
			return map[string]string{"kind": "depth"}
		})
	case flows.RecoveryNoRefreshToken:
		e.metricInc(MetricNoRefreshToken)
		if res.Err != nil {
			log.Error().Err(res.Err).Msg("reading refresh token failed, logging out")
		} else {
			log.Warn().Msg("no refresh token stored, logging out")
		}
		e.emitAudit(ctx, auditEventRefreshFailure, false, attempt, depth, err, nil)
	case flows.RecoveryRejected:
		e.metricInc(MetricRefreshRejected)
		ev := log.Warn()
		var rejected *refresh.RejectedError
		if errors.As(res.Err, &rejected) {
			ev = ev.Int("status", rejected.StatusCode)
		}
		ev.Msg("refresh rejected, logging out")
		e.emitAudit(ctx, auditEventRefreshFailure, false, attempt, depth, err, nil)
	case flows.RecoveryTransport:
		e.metricInc(MetricRefreshTransportError)
		log.Warn().Err(res.Err).Msg("refresh call failed, logging out")
		e.emitAudit(ctx, auditEventRefreshFailure, false, attempt, depth, err, nil)
	case flows.RecoveryPersist:
		e.metricInc(MetricTokenPersistFailure)
		log.Error().Err(res.Err).Msg("persisting rotated tokens failed, logging out")
		e.emitAudit(ctx, auditEventRefreshFailure, false, attempt, depth, err, nil)
	}

	e.teardownLocked(ctx, res.Outcome.String(), err, depth, attempt)
	return res, err
}

func (e *Engine) recoveryDeps() flows.RecoveryDeps {
	return flows.RecoveryDeps{
		SessionValid:      e.session.IsValid,
		IsRefreshEndpoint: e.isRefreshEndpoint,
		MaxDepth:          e.config.Refresh.MaxRetryDepth,
		CurrentAccess: func(ctx context.Context) (string, error) {
			token, _, err := e.currentAccess(ctx)
			return token, err
		},
		RefreshToken: func(ctx context.Context) (string, error) {
			token, _, err := e.store.Get(ctx, tokenstore.KeyRefresh)
			return token, err
		},
		Refresh:    e.callRefresh,
		IsRejected: isRejected,
		Persist:    e.persistLocked,
		Now:        time.Now,
	}
}

func (e *Engine) callRefresh(ctx context.Context, refreshToken string) (string, string, error) {
	if e.provider == nil {
		return "", "", errors.New("no refresher configured")
	}
	r, err := e.provider()
	if err != nil {
		return "", "", fmt.Errorf("resolving refresher: %w", err)
	}
	if r == nil {
		return "", "", errors.New("refresher provider returned nil")
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Refresh.Timeout)
	defer cancel()

	pair, err := r.Refresh(ctx, refreshToken)
	if err != nil {
		return "", "", err
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return "", "", fmt.Errorf("%w: empty token in response", refresh.ErrMalformed)
	}
	return pair.AccessToken, pair.RefreshToken, nil
}

func isRejected(err error) bool {
	return errors.Is(err, refresh.ErrRejected) || errors.Is(err, refresh.ErrMalformed)
}

func recoveryError(res flows.RecoveryResult, depth int) error {
	switch res.Outcome {
	case flows.RecoverySelfRefresh:
		return fmt.Errorf("%w: refresh endpoint returned 401", ErrLoopDetected)
	case flows.RecoveryDepthExceeded:
		return fmt.Errorf("%w: %d authorization failures for one request", ErrLoopDetected, depth)
	case flows.RecoveryNoRefreshToken:
		if res.Err != nil {
			return fmt.Errorf("%w: %v", ErrNoRefreshToken, res.Err)
		}
		return ErrNoRefreshToken
	case flows.RecoveryRejected:
		return fmt.Errorf("%w: %v", ErrRefreshRejected, res.Err)
	case flows.RecoveryTransport:
		return fmt.Errorf("%w: %v", ErrRefreshTransport, res.Err)
	case flows.RecoveryPersist:
		return fmt.Errorf("%w: %v", ErrTokenPersist, res.Err)
	default:
		return fmt.Errorf("unexpected recovery outcome %s", res.Outcome)
	}
}

// rebuild clones req for a resend with token, restoring the body from GetBody.
func rebuild(req *http.Request, token string) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, ErrBodyNotReplayable
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBodyNotReplayable, err)
		}
		out.Body = body
	}
	out.Header.Set("Authorization", "Bearer "+token)
	return out, nil
}
