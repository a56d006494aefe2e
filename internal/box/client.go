package box

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tonimelisma/box-go/internal/auth"
	"github.com/tonimelisma/box-go/internal/events"
)

// Default endpoints.
const (
	DefaultBaseURL   = "https://api.box.com/2.0"
	DefaultUploadURL = "https://upload.box.com/api/2.0"
	defaultUserAgent = "box-go/0.1"
)

// Session provides access tokens. Defined at the consumer; every
// session.Session satisfies it.
type Session interface {
	AccessToken(ctx context.Context) (string, error)
	HandleExpired(ctx context.Context, rejected string, cause error) error
}

// RetryPolicy controls retries of network errors and retryable statuses.
type RetryPolicy struct {
	MaxAttempts int // total attempts including the first; <1 means 1
	Base        time.Duration
	Max         time.Duration
	Factor      float64
	Jitter      float64 // fraction, e.g. 0.25 for ±25%
}

// DefaultRetryPolicy returns 5 attempts, 1s base doubling to a 60s cap, ±25% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Base:        1 * time.Second,
		Max:         60 * time.Second,
		Factor:      2.0,
		Jitter:      0.25,
	}
}

// Client is an HTTP client for the Box API.
// It handles request construction, authentication, retry with
// exponential backoff, and error classification.
type Client struct {
	baseURL    string
	uploadURL  string
	httpClient *http.Client
	session    Session
	logger     *slog.Logger
	sink       events.Sink
	retry      RetryPolicy
	userAgent  string
	asUser     string

	// sleepFunc waits between retries. Tests override it to avoid delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
	nowFunc   func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client. Defaults to http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithSink sets the event sink for retry notifications.
func WithSink(s events.Sink) Option {
	return func(c *Client) { c.sink = s }
}

// WithRetryPolicy replaces DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithUploadURL overrides the upload host base URL.
func WithUploadURL(u string) Option {
	return func(c *Client) { c.uploadURL = u }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates a Box API client authenticating with s.
func NewClient(s Session, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		uploadURL:  DefaultUploadURL,
		httpClient: http.DefaultClient,
		session:    s,
		retry:      DefaultRetryPolicy(),
		userAgent:  defaultUserAgent,
		sleepFunc:  timeSleep,
		nowFunc:    time.Now,
	}

	for _, o := range opts {
		o(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}

	c.sink = events.OrDiscard(c.sink)

	if c.retry.MaxAttempts < 1 {
		c.retry.MaxAttempts = 1
	}

	return c
}

// AsUser returns a copy of c that sends every request on behalf of userID
// (As-User header). An empty userID removes the header.
func (c *Client) AsUser(userID string) *Client {
	cp := *c
	cp.asUser = userID

	return &cp
}

// Request describes one API call.
type Request struct {
	Method string
	Path   string // appended to BaseURL
	Query  url.Values
	Header http.Header

	// Body is rewound between attempts when it implements io.Seeker and is
	// buffered in memory otherwise.
	Body        io.Reader
	ContentType string // defaults to application/json when Body is set

	// BaseURL overrides the client's API base URL (e.g. the upload host).
	BaseURL string
}

// Do executes a JSON request against the API. The caller closes the response
// body on success.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	return c.DoRequest(ctx, &Request{Method: method, Path: path, Body: body})
}

// DoRequest executes r with authentication and retries. Non-2xx responses
// are returned as *APIError. Retryable failures that outlast the retry
// budget are returned as *auth.TransientError wrapping the last failure.
func (c *Client) DoRequest(ctx context.Context, r *Request) (*http.Response, error) {
	target := c.requestURL(r)

	body, err := replayable(r.Body)
	if err != nil {
		return nil, err
	}

	var (
		attempt  int // failed attempts so far
		replayed bool
	)

	for {
		if attempt > 0 || replayed {
			if err := rewindBody(body); err != nil {
				return nil, err
			}
		}

		tok, err := c.session.AccessToken(ctx)
		if err != nil {
			if ctx.Err() != nil || !errors.Is(err, auth.ErrTransient) {
				return nil, fmt.Errorf("box: obtaining token: %w", err)
			}

			var status int

			var te *auth.TransientError
			if errors.As(err, &te) {
				status = te.StatusCode
			}

			if attempt+1 < c.retry.MaxAttempts {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after token error",
					slog.String("method", r.Method),
					slog.String("path", r.Path),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)
				c.emit(events.KindRetry, r, attempt+1, status, backoff, err)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("box: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			c.emit(events.KindRetriesExhausted, r, attempt+1, status, 0, err)

			return nil, fmt.Errorf("box: obtaining token after %d attempts: %w", attempt+1, err)
		}

		resp, err := c.doOnce(ctx, r, target, body, tok)
		if err != nil {
			// Context cancellation is not retryable.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("box: request canceled: %w", ctx.Err())
			}

			if attempt+1 < c.retry.MaxAttempts {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", r.Method),
					slog.String("path", r.Path),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)
				c.emit(events.KindRetry, r, attempt+1, 0, backoff, err)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("box: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			c.emit(events.KindRetriesExhausted, r, attempt+1, 0, 0, err)

			return nil, &auth.TransientError{
				Op:  r.Method + " " + r.Path,
				Err: fmt.Errorf("failed after %d attempts: %w", attempt+1, err),
			}
		}

		// 2xx: success.
		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", r.Method),
				slog.String("path", r.Path),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		apiErr := newAPIError(resp, errBody)

		// A 401 gets one replay with a new token; it does not use up a retry.
		if resp.StatusCode == http.StatusUnauthorized && !replayed {
			if herr := c.session.HandleExpired(ctx, tok, apiErr); herr != nil {
				return nil, herr
			}

			c.logger.Debug("replaying request with new token",
				slog.String("method", r.Method),
				slog.String("path", r.Path),
			)

			replayed = true

			continue
		}

		if auth.IsRetryableStatus(resp.StatusCode) {
			if attempt+1 < c.retry.MaxAttempts {
				backoff := c.retryBackoff(resp, attempt)
				c.logger.Warn("retrying after HTTP error",
					slog.String("method", r.Method),
					slog.String("path", r.Path),
					slog.Int("status", resp.StatusCode),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
				)
				c.emit(events.KindRetry, r, attempt+1, resp.StatusCode, backoff, apiErr)

				if err := c.sleepFunc(ctx, backoff); err != nil {
					return nil, fmt.Errorf("box: request canceled: %w", err)
				}

				attempt++

				continue
			}

			c.logger.Error("request failed after retries",
				slog.String("method", r.Method),
				slog.String("path", r.Path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempts", attempt+1),
			)
			c.emit(events.KindRetriesExhausted, r, attempt+1, resp.StatusCode, 0, apiErr)

			return nil, &auth.TransientError{Op: r.Method + " " + r.Path, StatusCode: resp.StatusCode, Err: apiErr}
		}

		return nil, apiErr
	}
}

func (c *Client) requestURL(r *Request) string {
	base := r.BaseURL
	if base == "" {
		base = c.baseURL
	}

	u := base + r.Path
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}

	return u
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, r *Request, target string, body io.Reader, tok string) (*http.Response, error) {
	if body == nil {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", c.userAgent)

	if c.asUser != "" {
		req.Header.Set("As-User", c.asUser)
	}

	switch {
	case r.ContentType != "":
		req.Header.Set("Content-Type", r.ContentType)
	case r.Body != nil:
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// noClose hides Close so the transport cannot close a body we may replay.
type noClose struct{ io.ReadSeeker }

// replayable returns a body that can be rewound between attempts.
func replayable(body io.Reader) (io.ReadSeeker, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case *bytes.Reader:
		return b, nil
	case *bytes.Buffer:
		return bytes.NewReader(b.Bytes()), nil
	case io.ReadSeeker:
		if _, ok := body.(io.Closer); ok {
			return noClose{b}, nil
		}

		return b, nil
	default:
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("box: buffering request body: %w", err)
		}

		return bytes.NewReader(data), nil
	}
}

// rewindBody seeks body back to the start for a retry.
func rewindBody(body io.ReadSeeker) error {
	if body == nil {
		return nil
	}

	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("box: rewinding request body: %w", err)
	}

	return nil
}

// retryBackoff returns the backoff for a retryable response. 429 and 503
// responses carrying Retry-After use that value.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	p := c.retry

	backoff := float64(p.Base) * math.Pow(p.Factor, float64(attempt))
	if p.Max > 0 && backoff > float64(p.Max) {
		backoff = float64(p.Max)
	}

	jitter := backoff * p.Jitter * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

func (c *Client) emit(kind events.Kind, r *Request, attempt, status int, backoff time.Duration, err error) {
	c.sink.Emit(events.Event{
		Kind:       kind,
		Time:       c.nowFunc(),
		Method:     r.Method,
		Path:       r.Path,
		Attempt:    attempt,
		StatusCode: status,
		Backoff:    backoff,
		Err:        err,
	})
}

// timeSleep waits for d or until ctx is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
