package weeverytrip

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventSessionEstablished = "session_established"
	auditEventSessionInvalidated = "session_invalidated"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshFailure     = "refresh_failure"
	auditEventRefreshCoalesced   = "refresh_coalesced"
	auditEventLoopDetected       = "loop_detected"
	auditEventResendAborted      = "resend_aborted"
)

// AuditErrorCode is the stable error label written to [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrSessionInvalid    AuditErrorCode = "session_invalid"
	auditErrLoopDetected      AuditErrorCode = "loop_detected"
	auditErrNoRefreshToken    AuditErrorCode = "no_refresh_token"
	auditErrRefreshRejected   AuditErrorCode = "refresh_rejected"
	auditErrRefreshTransport  AuditErrorCode = "refresh_transport"
	auditErrTokenPersist      AuditErrorCode = "token_persist"
	auditErrBodyNotReplayable AuditErrorCode = "body_not_replayable"
	auditErrInternal          AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	attempt *RecoveryAttempt,
	depth int,
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
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		SessionID: e.currentSessionID(),
		Depth:     depth,
		Success:   success,
		Metadata:  metadata,
	}
	// Path only: query strings may carry user data.
	if req := attempt.request(); req != nil {
		event.Method = req.Method
		if req.URL != nil {
			event.Path = req.URL.Path
		}
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrSessionInvalid):
		return auditErrSessionInvalid
	case errors.Is(err, ErrLoopDetected):
		return auditErrLoopDetected
	case errors.Is(err, ErrNoRefreshToken):
		return auditErrNoRefreshToken
	case errors.Is(err, ErrRefreshRejected):
		return auditErrRefreshRejected
	case errors.Is(err, ErrRefreshTransport):
		return auditErrRefreshTransport
	case errors.Is(err, ErrTokenPersist):
		return auditErrTokenPersist
	case errors.Is(err, ErrBodyNotReplayable):
		return auditErrBodyNotReplayable
	default:
		return auditErrInternal
	}
}
