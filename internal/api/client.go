// Package api wraps all traffic to the grievance API: login endpoint
// selection, bearer credential attachment, and normalization of failure
// responses into the client's error taxonomy.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"nivaran.org/internal/ids"
	"nivaran.org/internal/obs"
	"nivaran.org/internal/session"
	"nivaran.org/internal/token"
)

// ErrLoginRejected indicates the API refused the supplied credentials. No
// session state changes when it is returned.
var ErrLoginRejected = errors.New("api: login rejected")

// RequestError is any non-success response that is not an authentication
// failure. The grievance in question stays wherever it was.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("api: request failed: %s", e.Message)
}

// Server error codes that invalidate the session regardless of HTTP status.
var sessionKillCodes = map[string]struct{}{
	"TOKEN_EXPIRED":  {},
	"TOKEN_INVALID":  {},
	"TOKEN_MISSING":  {},
	"USER_NOT_FOUND": {},
}

// Session is the slice of the session lifecycle the transport consults.
type Session interface {
	Token() (string, bool)
	Establish(tok string, profile json.RawMessage) (session.Route, error)
	ForceLogout(reason error) session.Route
	RaiseExpiryWarning()
}

const defaultTimeout = 15 * time.Second

// Client is the authenticated transport. Every request reads the current
// persisted credential through the session; nothing is cached here.
type Client struct {
	base          *url.URL
	http          *http.Client
	session       Session
	limiter       *rate.Limiter
	warnThreshold time.Duration
	now           func() time.Time
}

// Option configures Client behavior.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTimeout sets the per-request timeout. The reference behavior had
// none; the client adds one defensively.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit paces outbound calls. Zero rps disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithClock overrides the wall clock. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New returns a client against the given API origin.
func New(origin string, sess Session, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(origin, "/"))
	if err != nil {
		return nil, fmt.Errorf("api: parse origin: %w", err)
	}
	c := &Client{
		base:          base,
		http:          &http.Client{Timeout: defaultTimeout},
		session:       sess,
		warnThreshold: token.DefaultExpiryWarning,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Response is a settled successful API response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return errors.New("api: empty response body")
	}
	return json.Unmarshal(r.Body, v)
}

type requestOptions struct {
	headers     http.Header
	body        io.Reader
	contentType string
	multipart   bool
}

// RequestOption configures a single request.
type RequestOption func(*requestOptions) error

// WithJSONBody attaches a JSON-encoded body.
func WithJSONBody(v any) RequestOption {
	return func(o *requestOptions) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("api: encode body: %w", err)
		}
		o.body = bytes.NewReader(data)
		return nil
	}
}

// WithMultipartBody attaches a multipart body. The default JSON content
// type is dropped so the boundary-bearing one is sent instead.
func WithMultipartBody(contentType string, body io.Reader) RequestOption {
	return func(o *requestOptions) error {
		o.body = body
		o.contentType = contentType
		o.multipart = true
		return nil
	}
}

// WithHeader sets a request header. Caller headers win over defaults.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) error {
		if o.headers == nil {
			o.headers = http.Header{}
		}
		o.headers.Set(key, value)
		return nil
	}
}

// WithIdempotencyKey tags a mutating command so the API can dedupe retries.
func WithIdempotencyKey(key string) RequestOption {
	return WithHeader("Idempotency-Key", key)
}

// Do issues an authenticated request. A missing credential fails with
// session.ErrUnauthenticated, an expired one with session.ErrExpired, and
// both force a logout. Server responses carrying a session-kill code do
// the same regardless of HTTP status.
func (c *Client) Do(ctx context.Context, method, path string, opts ...RequestOption) (*Response, error) {
	tok, ok := c.session.Token()
	if !ok {
		c.session.ForceLogout(session.ErrUnauthenticated)
		return nil, session.ErrUnauthenticated
	}
	decoded, err := token.Decode(tok)
	if err != nil {
		c.session.ForceLogout(err)
		return nil, err
	}
	if decoded.Expired(c.now()) {
		c.session.ForceLogout(session.ErrExpired)
		return nil, session.ErrExpired
	}

	var ro requestOptions
	for _, opt := range opts {
		if err := opt(&ro); err != nil {
			return nil, err
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, ro.body)
	if err != nil {
		return nil, fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("X-Request-Id", ids.New())
	if !ro.multipart {
		req.Header.Set("Content-Type", "application/json")
	} else if ro.contentType != "" {
		req.Header.Set("Content-Type", ro.contentType)
	}
	for key, values := range ro.headers {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		obs.Logger().Warn("api call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		obs.ObserveAPICall(method, path, 0, time.Since(start))
		return nil, &RequestError{Message: "request could not be completed"}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	obs.ObserveAPICall(method, path, resp.StatusCode, time.Since(start))
	if readErr != nil {
		return nil, &RequestError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	// Re-check the credential persisted *now*, not the one this call used,
	// so the warning stays live even when the periodic timer is delayed.
	c.refreshExpiryWarning()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &Response{StatusCode: resp.StatusCode, Body: body}, nil
	}
	return nil, c.failureError(resp.StatusCode, body)
}

func (c *Client) refreshExpiryWarning() {
	tok, ok := c.session.Token()
	if !ok {
		return
	}
	decoded, err := token.Decode(tok)
	if err != nil {
		return
	}
	if decoded.ExpiringSoon(c.now(), c.warnThreshold) {
		c.session.RaiseExpiryWarning()
	}
}

// failureError maps a non-success response to the error taxonomy. A body
// that is not JSON carries no error code and falls through to the status
// text.
func (c *Client) failureError(status int, body []byte) error {
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if _, kill := sessionKillCodes[parsed.Code]; kill {
			c.session.ForceLogout(session.ErrExpired)
			return session.ErrExpired
		}
		if parsed.Message != "" {
			return &RequestError{Status: status, Message: parsed.Message}
		}
		if parsed.Error != "" {
			return &RequestError{Status: status, Message: parsed.Error}
		}
	}
	return &RequestError{Status: status, Message: http.StatusText(status)}
}
