package weeverytrip

import (
	"net/http"
	"net/url"
	"strings"
)

// Decorate returns req with the current access token attached as a bearer
// Authorization header, or req itself when no token applies.
//
// The legacy auth_token is used when no access token is stored. Requests to the
// refresh endpoint and requests whose context carries [WithoutAuth] are never
// decorated. A store read error is logged and the request goes out unmodified.
// Decorate does not take the recovery lock; it sees whatever pair was written
// last.
func (e *Engine) Decorate(req *http.Request) *http.Request {
	if e == nil || e.store == nil || req == nil {
		return req
	}
	ctx := req.Context()
	if withoutAuthFromContext(ctx) || e.isRefreshEndpoint(req.URL) {
		return req
	}

	token, legacy, err := e.currentAccess(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("reading access token failed, sending request without credentials")
		e.metricInc(MetricDecorateSkipped)
		return req
	}
	if token == "" {
		e.metricInc(MetricDecorateSkipped)
		return req
	}

	e.metricInc(MetricDecorated)
	if legacy {
		e.metricInc(MetricDecoratedLegacy)
	}
	out := req.Clone(ctx)
	out.Header.Set("Authorization", "Bearer "+token)
	return out
}

func (e *Engine) isRefreshEndpoint(u *url.URL) bool {
	if u == nil || e.refreshURL == nil {
		return false
	}
	if u.Host != "" {
		if !strings.EqualFold(u.Scheme, e.refreshURL.Scheme) || !strings.EqualFold(u.Host, e.refreshURL.Host) {
			return false
		}
	}
	return strings.TrimRight(u.Path, "/") == strings.TrimRight(e.refreshURL.Path, "/")
}
