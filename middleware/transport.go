package middleware

import (
	"io"
	"net/http"

	weeverytrip "github.com/NemnemForStudy/WeEveryTrip-sub000"
)

// Hooks is the pair of callbacks a transport needs. *weeverytrip.Engine
// implements it.
type Hooks interface {
	Decorate(req *http.Request) *http.Request
	Authenticate(attempt *weeverytrip.RecoveryAttempt) (*http.Request, error)
}

// Transport is an http.RoundTripper that authenticates requests through Hooks.
//
// Every request is decorated before the first send. On a 401 the transport
// builds a RecoveryAttempt linked to the previous attempt of the same request
// and resends whatever Authenticate returns. When Authenticate gives up, the
// last 401 response is returned to the caller as is, with a nil error.
type Transport struct {
	hooks Hooks
	base  http.RoundTripper

	// OnGiveUp, when set, is called with the reason Authenticate declined to
	// resend.
	OnGiveUp func(req *http.Request, err error)
}

// NewTransport wraps base, or http.DefaultTransport when base is nil.
func NewTransport(hooks Hooks, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{hooks: hooks, base: base}
}

// NewClient returns an http.Client whose transport is a [Transport] over base.
func NewClient(hooks Hooks, base http.RoundTripper) *http.Client {
	return &http.Client{Transport: NewTransport(hooks, base)}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := t.hooks.Decorate(req)
	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}

	var prior *weeverytrip.RecoveryAttempt
	for resp.StatusCode == http.StatusUnauthorized {
		if resp.Request == nil {
			resp.Request = out
		}
		attempt := &weeverytrip.RecoveryAttempt{Response: resp, Prior: prior}

		next, authErr := t.hooks.Authenticate(attempt)
		if next == nil {
			if t.OnGiveUp != nil {
				t.OnGiveUp(out, authErr)
			}
			return resp, nil
		}

		drain(resp)
		out = next
		prior = attempt
		resp, err = t.base.RoundTrip(out)
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func drain(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}
