package weeverytrip

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	internalaudit "github.com/NemnemForStudy/WeEveryTrip-sub000/internal/audit"
	"github.com/NemnemForStudy/WeEveryTrip-sub000/internal/flows"
	"github.com/NemnemForStudy/WeEveryTrip-sub000/jwt"
	"github.com/NemnemForStudy/WeEveryTrip-sub000/session"
	"github.com/NemnemForStudy/WeEveryTrip-sub000/tokenstore"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Engine owns the token store, the session flag and the recovery lock. It is
// safe for concurrent use once built.
type Engine struct {
	config     Config
	store      tokenstore.Store
	session    *session.Controller
	provider   RefresherProvider
	refreshURL *url.URL
	logger     zerolog.Logger
	audit      *internalaudit.Dispatcher
	metrics    *Metrics

	// mu serializes recovery, logout and session establishment. Decorate does
	// not take it.
	mu        sync.Mutex
	sessionID atomic.Value
	// clearPending records that the last teardown could not empty the store.
	// Guarded by mu.
	clearPending bool

	owned []func() error
}

// Session returns the controller for observing session validity.
func (e *Engine) Session() *session.Controller {
	if e == nil {
		return nil
	}
	return e.session
}

// Store returns the token store in use.
func (e *Engine) Store() tokenstore.Store {
	if e == nil {
		return nil
	}
	return e.store
}

// RefreshEndpoint returns the absolute refresh URL.
func (e *Engine) RefreshEndpoint() string {
	if e == nil || e.refreshURL == nil {
		return ""
	}
	return e.refreshURL.String()
}

// Close drains the audit dispatcher and closes clients the engine created.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	e.closeOwned()
}

func (e *Engine) closeOwned() {
	for _, fn := range e.owned {
		if err := fn(); err != nil {
			e.logger.Warn().Err(err).Msg("closing owned client")
		}
	}
	e.owned = nil
}

// AuditDropped reports audit events lost to backpressure or shutdown.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditStats reports delivered, dropped and failed audit events.
func (e *Engine) AuditStats() AuditStats {
	if e == nil || e.audit == nil {
		return AuditStats{}
	}
	return e.audit.Stats()
}

// MetricsSnapshot copies the engine counters. Disabled metrics yield empty maps.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) currentSessionID() string {
	id, _ := e.sessionID.Load().(string)
	return id
}

// EstablishSession stores a pair obtained from a login and marks the session
// valid. Any legacy single token is removed.
func (e *Engine) EstablishSession(ctx context.Context, pair TokenPair) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if !pair.valid() {
		return ErrInvalidTokenPair
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.persistLocked(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		e.logger.Error().Err(err).Msg("persisting new session failed")
		return fmt.Errorf("%w: %v", ErrTokenPersist, err)
	}

	id := uuid.NewString()
	e.sessionID.Store(id)
	e.clearPending = false
	e.session.Reset()
	e.metricInc(MetricSessionEstablished)
	e.logger.Info().Str("session_id", id).Msg("session established")
	e.emitAudit(ctx, auditEventSessionEstablished, true, nil, 0, nil, nil)
	return nil
}

// Logout clears stored tokens and invalidates the session. Calling it on an
// already invalid session is a no-op apart from clearing the store again.
func (e *Engine) Logout(ctx context.Context) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.metricInc(MetricLogout)
	res := e.teardownLocked(ctx, "user_logout", nil, 0, nil)
	if res.ClearErr != nil {
		return fmt.Errorf("%w: %v", ErrTokenPersist, res.ClearErr)
	}
	return nil
}

// SessionInfo reports the local session state. Expiry is read from the access
// token without verifying its signature.
func (e *Engine) SessionInfo(ctx context.Context) (SessionInfo, error) {
	if e == nil || e.store == nil {
		return SessionInfo{}, ErrEngineNotReady
	}

	info := SessionInfo{
		Valid:     e.session.IsValid(),
		SessionID: e.currentSessionID(),
	}

	access, legacy, err := e.currentAccess(ctx)
	if err != nil {
		return info, err
	}
	info.HasAccessToken = access != ""
	info.LegacyToken = legacy

	_, hasRefresh, err := e.store.Get(ctx, tokenstore.KeyRefresh)
	if err != nil {
		return info, err
	}
	info.HasRefreshToken = hasRefresh

	if access != "" {
		inspection, err := jwt.Inspect(access)
		switch {
		case err == nil:
			info.Subject = inspection.Subject
			info.ExpiresAt = inspection.ExpiresAt
		case errors.Is(err, jwt.ErrNotJWT):
		default:
			return info, err
		}
	}
	return info, nil
}

// currentAccess returns the access token, falling back to the legacy key.
func (e *Engine) currentAccess(ctx context.Context) (string, bool, error) {
	token, ok, err := e.store.Get(ctx, tokenstore.KeyAccess)
	if err != nil {
		return "", false, err
	}
	if ok {
		return token, false, nil
	}
	token, ok, err = e.store.Get(ctx, tokenstore.KeyLegacy)
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// persistLocked writes a rotated pair and retires the legacy key. Caller holds mu.
func (e *Engine) persistLocked(ctx context.Context, access, refreshToken string) error {
	if err := tokenstore.SetPair(ctx, e.store, access, refreshToken); err != nil {
		return err
	}
	if err := e.store.Delete(ctx, tokenstore.KeyLegacy); err != nil {
		// The access key shadows the legacy one, so this is not fatal.
		e.logger.Warn().Err(err).Msg("removing legacy token failed")
	}
	return nil
}

// retryClearLocked empties the store again when the teardown that invalidated
// the session failed to. Caller holds mu.
func (e *Engine) retryClearLocked(ctx context.Context) {
	if !e.clearPending {
		return
	}
	if err := e.store.Clear(ctx); err != nil {
		e.logger.Error().Err(err).Msg("clearing token store failed again")
		return
	}
	e.clearPending = false
	e.logger.Info().Msg("token store cleared after earlier failure")
}

// teardownLocked clears the store and flips the session flag. Caller holds mu.
func (e *Engine) teardownLocked(ctx context.Context, reason string, cause error, depth int, attempt *RecoveryAttempt) flows.TeardownResult {
	res := flows.RunTeardown(ctx, flows.TeardownDeps{
		Store:      e.store,
		Invalidate: e.session.Logout,
	})
	e.clearPending = res.ClearErr != nil
	if res.ClearErr != nil {
		e.logger.Error().Err(res.ClearErr).Str("reason", reason).Msg("clearing token store failed")
	}
	if !res.Transitioned {
		return res
	}

	e.metricInc(MetricSessionInvalidated)
	e.logger.Info().Str("reason", reason).Str("session_id", e.currentSessionID()).Msg("session invalidated")
	e.emitAudit(ctx, auditEventSessionInvalidated, false, attempt, depth, cause, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	e.sessionID.Store("")
	return res
}
