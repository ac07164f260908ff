package weeverytrip

import (
	"io"
	"net/http"
	"strings"
	"time"

	internalaudit "github.com/NemnemForStudy/WeEveryTrip-sub000/internal/audit"
	"github.com/NemnemForStudy/WeEveryTrip-sub000/refresh"
	"github.com/rs/zerolog"
)

// TokenPair is an access token and the refresh token issued with it. The two are
// always persisted together.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

func (p TokenPair) valid() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// RecoveryAttempt describes one authorization failure of a logical request.
// Prior links to the previous failure of the same logical request, so the chain
// length is the number of 401s seen so far.
type RecoveryAttempt struct {
	// Response is the 401 response. Response.Request is the request that failed.
	Response *http.Response
	// UsedToken is the access token the failed request carried. When empty it is
	// read from the request's Authorization header.
	UsedToken string
	Prior     *RecoveryAttempt
}

// Depth returns 1 for the first failure and grows by one per linked attempt.
func (a *RecoveryAttempt) Depth() int {
	n := 0
	for p := a; p != nil; p = p.Prior {
		n++
	}
	return n
}

func (a *RecoveryAttempt) request() *http.Request {
	if a == nil || a.Response == nil {
		return nil
	}
	return a.Response.Request
}

func (a *RecoveryAttempt) usedToken() string {
	if a.UsedToken != "" {
		return a.UsedToken
	}
	req := a.request()
	if req == nil {
		return ""
	}
	return bearerToken(req.Header.Get("Authorization"))
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// Refresher mints a new pair from a refresh token.
type Refresher = refresh.Refresher

// RefresherProvider resolves the [Refresher] on first use. Build one with
// [refresh.Lazy].
type RefresherProvider = refresh.Provider

// SessionInfo is a point-in-time view of the local session.
type SessionInfo struct {
	Valid     bool
	SessionID string
	// HasAccessToken is true for both the current and the legacy key.
	HasAccessToken  bool
	HasRefreshToken bool
	LegacyToken     bool
	// Subject and ExpiresAt come from the access token's unverified claims and
	// are zero for opaque tokens.
	Subject   string
	ExpiresAt time.Time
}

// AuditEvent is a session lifecycle record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// LogSink is an [AuditSink] that writes events through zerolog.
type LogSink = internalaudit.LogSink
type AuditStats = internalaudit.Stats

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewLogSink creates a [LogSink] on logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return internalaudit.NewLogSink(logger)
}
