// Package fetcher implements the federation StatementFetcher (spec.md
// §4.2): retrieval of entity configurations and entity statements over HTTP,
// behind a capability-injected GET so tests substitute a deterministic
// responder (spec.md §9's design note) instead of a real network.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/openfedgo/trustchain/pkg/ratelimiter"
)

const (
	wellKnownPath = "/.well-known/openid-federation"
	entityStatementContentType = "application/entity-statement+jwt"
)

// GetFunc is the HTTP capability every fetch goes through: given a URL,
// timeout, and headers, perform a GET and return the status code, body, and
// content type. Tests provide a deterministic GetFunc instead of a real
// transport.
type GetFunc func(ctx context.Context, rawURL string, timeout time.Duration, headers map[string]string) (status int, body []byte, contentType string, err error)

// NewRetryableGetFunc builds a GetFunc backed by go-retryablehttp over a
// go-cleanhttp pooled transport: transient network errors and 5xx responses
// are retried with backoff before the branch is pruned (spec.md §7).
func NewRetryableGetFunc(maxRetries int) GetFunc {
	client := retryablehttp.NewClient()
	client.HTTPClient = cleanhttp.DefaultPooledClient()
	client.RetryMax = maxRetries
	client.Logger = nil

	return func(ctx context.Context, rawURL string, timeout time.Duration, headers map[string]string) (int, []byte, string, error) {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
		if err != nil {
			return 0, nil, "", fmt.Errorf("fetcher: build request: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return 0, nil, "", &ErrTimeout{URL: rawURL, Cause: err}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, nil, "", fmt.Errorf("fetcher: read body: %w", err)
		}
		return resp.StatusCode, body, resp.Header.Get("Content-Type"), nil
	}
}

// ErrTimeout wraps a fetch that failed to complete within its deadline, or
// any other network-level transport failure (spec.md's FetchTimeout).
type ErrTimeout struct {
	URL   string
	Cause error
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("fetcher: request to %s timed out or failed: %v", e.URL, e.Cause)
}

func (e *ErrTimeout) Unwrap() error { return e.Cause }

// ErrHTTPStatus is spec.md's FetchHTTPError(status).
type ErrHTTPStatus struct {
	URL    string
	Status int
}

func (e *ErrHTTPStatus) Error() string {
	return fmt.Sprintf("fetcher: %s returned HTTP %d", e.URL, e.Status)
}

// ErrFormat is spec.md's FetchFormatError.
type ErrFormat struct {
	URL    string
	Reason string
}

func (e *ErrFormat) Error() string {
	return fmt.Sprintf("fetcher: %s returned malformed response: %s", e.URL, e.Reason)
}

// StatementFetcher retrieves signed entity statements and entity
// configurations over HTTP.
type StatementFetcher struct {
	get         GetFunc
	timeout     time.Duration
	rateLimiter ratelimiter.RateLimiter
}

// Option configures a StatementFetcher.
type Option func(*StatementFetcher)

// WithRateLimiter attaches a politeness limiter keyed by issuer (spec.md §10.6).
func WithRateLimiter(rl ratelimiter.RateLimiter) Option {
	return func(f *StatementFetcher) { f.rateLimiter = rl }
}

// New creates a StatementFetcher. timeout is the per-request timeout
// (spec.md §5, default 10s is the caller's responsibility to configure).
func New(get GetFunc, timeout time.Duration, opts ...Option) *StatementFetcher {
	f := &StatementFetcher{get: get, timeout: timeout}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *StatementFetcher) throttle(ctx context.Context, issuer string) error {
	if f.rateLimiter == nil {
		return nil
	}
	result, err := f.rateLimiter.Allow(ctx, issuer)
	if err != nil {
		return fmt.Errorf("fetcher: rate limiter error for %q: %w", issuer, err)
	}
	if !result.Allowed() {
		return &ErrTimeout{URL: issuer, Cause: fmt.Errorf("politeness limit exceeded, retry after %s", result.RetryAfter())}
	}
	return nil
}

// validateContentType tolerates generic JWT content types alongside the
// advertised application/entity-statement+jwt, per spec.md §4.2.
func validateContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	if ct == "" {
		return true // some test/dev servers omit it; body shape is checked by the JWS parser anyway
	}
	return ct == entityStatementContentType || strings.Contains(ct, "jwt") || ct == "application/jose"
}

// FetchConfiguration retrieves entityID's self-signed Entity Configuration
// from its well-known location (spec.md §4.2, §6).
func (f *StatementFetcher) FetchConfiguration(ctx context.Context, entityID string) (string, error) {
	if err := f.throttle(ctx, entityID); err != nil {
		return "", err
	}

	u := strings.TrimRight(entityID, "/") + wellKnownPath
	status, body, ct, err := f.get(ctx, u, f.timeout, nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", &ErrHTTPStatus{URL: u, Status: status}
	}
	if !validateContentType(ct) {
		return "", &ErrFormat{URL: u, Reason: fmt.Sprintf("unexpected content type %q", ct)}
	}
	return strings.TrimSpace(string(body)), nil
}

// Fetch retrieves a statement with iss = iss, sub = sub from fetchEndpoint.
// When iss == sub (or sub is empty) the sub parameter is omitted, per
// spec.md §4.2 and §6.
func (f *StatementFetcher) Fetch(ctx context.Context, fetchEndpoint, iss, sub string) (string, error) {
	if err := f.throttle(ctx, iss); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("iss", iss)
	if sub != "" && sub != iss {
		q.Set("sub", sub)
	}

	u := fetchEndpoint
	if strings.Contains(u, "?") {
		u += "&" + q.Encode()
	} else {
		u += "?" + q.Encode()
	}

	status, body, ct, err := f.get(ctx, u, f.timeout, nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", &ErrHTTPStatus{URL: u, Status: status}
	}
	if !validateContentType(ct) {
		return "", &ErrFormat{URL: u, Reason: fmt.Sprintf("unexpected content type %q", ct)}
	}
	return strings.TrimSpace(string(body)), nil
}

// ListSubordinates retrieves the JSON array of subordinate entity ids from
// listEndpoint (spec.md §6, §12). Absence of the endpoint is not fatal to
// any caller — it is an optimization hook only.
func ListSubordinates(ctx context.Context, get GetFunc, listEndpoint string, timeout time.Duration) ([]string, error) {
	status, body, _, err := get(ctx, listEndpoint, timeout, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &ErrHTTPStatus{URL: listEndpoint, Status: status}
	}
	var ids []string
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, &ErrFormat{URL: listEndpoint, Reason: err.Error()}
	}
	return ids, nil
}
