package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultPath is the refresh endpoint path on the backend.
const DefaultPath = "/api/auth/refresh"

const maxResponseBytes = 64 << 10

var (
	// ErrRejected marks a non-2xx answer from the endpoint.
	ErrRejected = errors.New("refresh: token rejected")
	// ErrTransport marks a failure to get any answer.
	ErrTransport = errors.New("refresh: transport failure")
	// ErrMalformed marks a 2xx answer without a usable token pair.
	ErrMalformed = errors.New("refresh: malformed response")
)

// RejectedError carries the status code of a rejected refresh.
type RejectedError struct {
	StatusCode int
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("refresh: token rejected with status %d", e.StatusCode)
}

func (e *RejectedError) Unwrap() error { return ErrRejected }

// Pair is a freshly minted access/refresh token pair.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Client is the minimal synchronous caller of the refresh endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient targets endpoint, which must be an absolute http(s) URL. A nil
// httpClient gets a dedicated client with a 15s timeout.
func NewClient(endpoint string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("refresh: parsing endpoint: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("refresh: endpoint must be an absolute http(s) URL, got %q", endpoint)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{endpoint: u.String(), http: httpClient}, nil
}

// Endpoint returns the absolute URL the client posts to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Refresh exchanges refreshToken for a new pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Pair, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, http.NoBody)
	if err != nil {
		return Pair{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Authorization", "Bearer "+refreshToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Pair{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return Pair{}, &RejectedError{StatusCode: resp.StatusCode}
	}

	var pair Pair
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&pair); err != nil {
		return Pair{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(pair.AccessToken) == "" || strings.TrimSpace(pair.RefreshToken) == "" {
		return Pair{}, fmt.Errorf("%w: missing token", ErrMalformed)
	}
	return pair, nil
}
