// Package client implements the ModelGate session and request lifecycle:
// bearer-authenticated JSON requests with a single transparent refresh-and-
// retry on session expiry, single-flight coordination of the refresh call,
// and backoff-masked transient failures on the unauthenticated auth calls.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/modelgate/modelgate-go/internal/tokens"
	"github.com/modelgate/modelgate-go/pkg/metrics"
	"github.com/modelgate/modelgate-go/session"
)

// Client owns one session against a ModelGate backend. Safe for concurrent
// use; concurrent requests hitting an expired access token share a single
// refresh call.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      session.Store
	nav        Navigator
	limiter    *rate.Limiter
	backoff    time.Duration

	refreshing singleflight.Group
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (custom transports,
// timeouts, proxies).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithNavigator sets the redirect-to-login hook invoked on session teardown.
func WithNavigator(n Navigator) Option {
	return func(c *Client) { c.nav = n }
}

// WithRateLimit applies a client-side token bucket to all outgoing requests.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithBackoffUnit changes the base delay of the connection-retry schedule
// (default one second; the schedule is unit, then 2*unit).
func WithBackoffUnit(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// New creates a client for the given base URL, persisting its session in store.
func New(baseURL string, store session.Store, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		store:   store,
		nav:     nopNavigator{},
		backoff: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return c
}

// Do performs an authenticated JSON request against the backend. body (when
// non-nil) is marshalled to JSON. On 401 with a stored access token the
// client refreshes once and re-issues the request once; the second response
// is returned whatever its status. If the refresh fails the session is torn
// down, the navigator is invoked, and the original 401 is returned with its
// body still readable.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	return c.DoWithHeaders(ctx, method, path, body, nil)
}

// DoWithHeaders is Do with extra headers merged over the defaults, so callers
// can override Content-Type or add their own.
func (c *Client) DoWithHeaders(ctx context.Context, method, path string, body any, hdr http.Header) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	token := c.store.AccessToken()
	resp, err := c.send(ctx, method, path, body, token, hdr)
	if err != nil {
		return nil, err
	}
	// 401 on an anonymous call means the endpoint wants auth we never had;
	// nothing expired, nothing to refresh.
	if resp.StatusCode != http.StatusUnauthorized || token == "" {
		return resp, nil
	}

	// The teardown Once is shared by everyone who joined this refresh, so
	// the redirect fires once however many requests piled up on the 401.
	if out := c.refreshAccessToken(ctx); !out.ok {
		out.teardown.Do(func() {
			c.store.Clear()
			metrics.SessionTeardownTotal.Inc()
			c.nav.RedirectToLogin()
		})
		return resp, nil
	}

	resp.Body.Close()
	metrics.RequestRetriesTotal.Inc()
	// One retry with the refreshed token; its response is final (even a 401).
	return c.send(ctx, method, path, body, c.store.AccessToken(), hdr)
}

// send issues one HTTP request. token == "" sends an anonymous request.
func (c *Client) send(ctx context.Context, method, path string, body any, token string, hdr http.Header) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, vs := range hdr {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return c.httpClient.Do(req)
}

// AccessTokenExpiry reports when the stored access token expires, decoding
// the exp claim without signature verification. ok is false when no token is
// stored or it does not carry a readable exp claim.
func (c *Client) AccessTokenExpiry() (exp time.Time, ok bool) {
	tok := c.store.AccessToken()
	if tok == "" {
		return time.Time{}, false
	}
	exp, err := tokens.Expiry(tok)
	if err != nil {
		return time.Time{}, false
	}
	return exp, true
}
