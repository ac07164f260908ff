package weeverytrip

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/NemnemForStudy/WeEveryTrip-sub000/refresh"
)

func buildAuditTestEngine(t *testing.T, sink AuditSink, r *fakeRefresher) *Engine {
	t.Helper()
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 16
	cfg.Audit.DropIfFull = false

	engine, err := New().
		WithConfig(cfg).
		WithTokenStore(seededStore(t, "A1", "R1")).
		WithRefresherProvider(r.provider()).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return engine
}

func nextEvent(t *testing.T, events <-chan AuditEvent) AuditEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for audit event")
		return AuditEvent{}
	}
}

func TestAuditRefreshSuccess(t *testing.T) {
	sink := NewChannelSink(16)
	engine := buildAuditTestEngine(t, sink, &fakeRefresher{next: refresh.Pair{AccessToken: "A2", RefreshToken: "R2"}})
	defer engine.Close()

	if _, err := engine.Authenticate(unauthorized(t, http.MethodGet, testBaseURL+"/api/posts?page=2", "A1")); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	ev := nextEvent(t, sink.Events())
	if ev.EventType != auditEventRefreshSuccess || !ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Method != http.MethodGet || ev.Path != "/api/posts" || ev.Depth != 1 {
		t.Fatalf("unexpected request fields %+v", ev)
	}
	if ev.SessionID == "" {
		t.Fatal("expected session id")
	}
}

func TestAuditRejectedRefreshEmitsFailureAndInvalidation(t *testing.T) {
	sink := NewChannelSink(16)
	engine := buildAuditTestEngine(t, sink, &fakeRefresher{err: &refresh.RejectedError{StatusCode: http.StatusForbidden}})
	defer engine.Close()

	_, _ = engine.Authenticate(unauthorized(t, http.MethodGet, testBaseURL+"/api/posts", "A1"))

	failure := nextEvent(t, sink.Events())
	if failure.EventType != auditEventRefreshFailure || failure.Error != string(auditErrRefreshRejected) {
		t.Fatalf("unexpected failure event %+v", failure)
	}
	invalidated := nextEvent(t, sink.Events())
	if invalidated.EventType != auditEventSessionInvalidated || invalidated.Metadata["reason"] != "rejected" {
		t.Fatalf("unexpected invalidation event %+v", invalidated)
	}
}

func TestAuditLoopDetection(t *testing.T) {
	sink := NewChannelSink(16)
	engine := buildAuditTestEngine(t, sink, &fakeRefresher{})
	defer engine.Close()

	_, _ = engine.Authenticate(unauthorized(t, http.MethodPost, testBaseURL+refresh.DefaultPath, "R1"))

	ev := nextEvent(t, sink.Events())
	if ev.EventType != auditEventLoopDetected || ev.Metadata["kind"] != "self_refresh" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestAuditJSONNeverContainsTokens(t *testing.T) {
	var buf bytes.Buffer
	engine := buildAuditTestEngine(t, NewJSONWriterSink(&buf), &fakeRefresher{next: refresh.Pair{AccessToken: "secret-A2", RefreshToken: "secret-R2"}})

	if _, err := engine.Authenticate(unauthorized(t, http.MethodGet, testBaseURL+"/api/posts", "A1")); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if err := engine.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	engine.Close()

	out := buf.String()
	if strings.Count(out, "\n") < 2 {
		t.Fatalf("expected at least two events, got %q", out)
	}
	if strings.Contains(out, "secret-") || strings.Contains(out, "R1") {
		t.Fatalf("audit output leaked a token: %s", out)
	}
}

func TestAuditDisabledByDefault(t *testing.T) {
	engine := newTestEngine(t, seededStore(t, "A1", "R1"), &fakeRefresher{})
	if engine.audit != nil {
		t.Fatal("audit dispatcher should be nil when disabled")
	}
	if engine.AuditDropped() != 0 {
		t.Fatal("expected zero drops")
	}
}

func TestAuditStatsCountsDelivered(t *testing.T) {
	sink := NewChannelSink(16)
	engine := buildAuditTestEngine(t, sink, &fakeRefresher{next: refresh.Pair{AccessToken: "A2", RefreshToken: "R2"}})

	if _, err := engine.Authenticate(unauthorized(t, http.MethodGet, testBaseURL+"/api/posts", "A1")); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	engine.Close()

	stats := engine.AuditStats()
	if stats.Delivered != 1 || stats.Dropped != 0 || stats.Failed != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if engine.AuditDropped() != 0 {
		t.Fatal("no drops expected")
	}
}
