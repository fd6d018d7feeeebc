// Package wordpress is a small client for the WordPress REST API
// (/wp-json/wp/v2) covering the media library, posts and pages.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hpungsan/wpswap/internal/config"
	"github.com/hpungsan/wpswap/internal/errors"
	"github.com/hpungsan/wpswap/internal/logging"
)

const (
	apiPrefix = "/wp-json/wp/v2"

	defaultRetryBaseDelay = 500 * time.Millisecond
	defaultRetryMaxDelay  = 8 * time.Second
	maxErrorBodyBytes     = 4096
)

// HTTPDoer describes the HTTP client used by Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to one WordPress site with application-password auth.
type Client struct {
	baseURL        string
	username       string
	password       string
	perPage        int
	requestTimeout time.Duration
	uploadTimeout  time.Duration

	httpClient     HTTPDoer
	maxRetries     int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	sleeper        func(context.Context, time.Duration) error
	logger         *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleeper != nil {
			c.sleeper = sleeper
		}
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs a client from a validated config.
func New(cfg *config.Config, opts ...Option) *Client {
	perPage := cfg.PerPage
	if perPage <= 0 || perPage > config.MaxPerPage {
		perPage = config.MaxPerPage
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	c := &Client{
		baseURL:        strings.TrimRight(strings.TrimSpace(cfg.WordPressURL), "/"),
		username:       strings.TrimSpace(cfg.Username),
		password:       strings.ReplaceAll(cfg.AppPassword, " ", ""),
		perPage:        perPage,
		requestTimeout: cfg.RequestTimeout(),
		uploadTimeout:  cfg.UploadTimeout(),
		httpClient:     &http.Client{},
		maxRetries:     maxRetries,
		retryBaseDelay: defaultRetryBaseDelay,
		retryMaxDelay:  defaultRetryMaxDelay,
		sleeper:        sleepContext,
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the site root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// request describes one API call. body is replayed on every attempt.
type request struct {
	op          string
	method      string
	path        string // relative to the site root
	query       url.Values
	body        []byte
	contentType string
	headers     map[string]string
	anonymous   bool
	timeout     time.Duration
	// noRetry marks non-idempotent calls. They are only retried on a 429
	// carrying Retry-After, where the server refused without storing anything.
	noRetry     bool
}

// response is a fully-read HTTP response.
type response struct {
	status int
	header http.Header
	body   []byte
}

// apiError is the error envelope WordPress returns.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// send performs req, retrying network failures, 429 and 5xx responses.
// A non-2xx response that is not retried (or exhausts retries) is returned
// without error so callers can map the status.
func (c *Client) send(ctx context.Context, req request) (*response, error) {
	endpoint := c.baseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}
	timeout := req.timeout
	if timeout <= 0 {
		timeout = c.requestTimeout
	}

	attempts := c.maxRetries + 1
	for attempt := 1; ; attempt++ {
		resp, err := c.sendOnce(ctx, req, endpoint, timeout)
		if ctx.Err() != nil {
			return nil, errors.NewCanceled(req.op)
		}

		retry := attempt < attempts && shouldRetry(req, resp, err)
		if !retry {
			if err != nil {
				return nil, errors.NewRemote(req.op, 0, err.Error())
			}
			return resp, nil
		}

		delay := c.backoff(attempt)
		if err == nil {
			if ra := retryAfter(resp.header); ra > 0 {
				delay = min(ra, c.retryMaxDelay)
			}
		}
		c.logger.Debug("retrying wordpress request",
			"op", req.op, "attempt", attempt, "delay", delay, "error", errorString(err, resp))
		if err := c.sleeper(ctx, delay); err != nil {
			return nil, errors.NewCanceled(req.op)
		}
	}
}

func (c *Client) sendOnce(ctx context.Context, req request, endpoint string, timeout time.Duration) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}
	if !req.anonymous {
		httpReq.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// getJSON sends a GET and decodes a 200 response into out.
func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out any) (*response, error) {
	resp, err := c.send(ctx, request{op: op, method: http.MethodGet, path: path, query: query})
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return resp, statusError(op, resp)
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return resp, errors.NewRemote(op, resp.status, "decode response: "+err.Error())
	}
	return resp, nil
}

// paginate calls fetch for page 1..N until X-WP-TotalPages is reached or a
// page comes back empty.
func (c *Client) paginate(ctx context.Context, op, path string, query url.Values, fetch func(raw json.RawMessage) (int, error)) error {
	for page := 1; ; page++ {
		if ctx.Err() != nil {
			return errors.NewCanceled(op)
		}
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("per_page", strconv.Itoa(c.perPage))
		q.Set("page", strconv.Itoa(page))

		var raw json.RawMessage
		resp, err := c.getJSON(ctx, op, path, q, &raw)
		if err != nil {
			return err
		}
		n, err := fetch(raw)
		if err != nil {
			return errors.NewRemote(op, resp.status, "decode page "+strconv.Itoa(page)+": "+err.Error())
		}
		if n == 0 {
			return nil
		}

		total, err := strconv.Atoi(resp.header.Get("X-WP-TotalPages"))
		if err != nil || total < 1 {
			total = 1
		}
		if page >= total {
			return nil
		}
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := c.retryBaseDelay << (attempt - 1)
	if delay <= 0 || delay > c.retryMaxDelay {
		delay = c.retryMaxDelay
	}
	return delay
}

func shouldRetry(req request, resp *response, err error) bool {
	if req.noRetry {
		return err == nil && resp.status == http.StatusTooManyRequests && retryAfter(resp.header) > 0
	}
	return err != nil || retryableStatus(resp.status)
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func retryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// statusError maps a non-success response to a REMOTE error, preferring the
// message from the WordPress error envelope.
func statusError(op string, resp *response) *errors.Error {
	msg := http.StatusText(resp.status)
	var env apiError
	if err := json.Unmarshal(resp.body, &env); err == nil && env.Message != "" {
		msg = env.Message
		if env.Code != "" {
			msg = env.Code + ": " + msg
		}
	} else if len(resp.body) > 0 && len(resp.body) <= maxErrorBodyBytes && !bytes.HasPrefix(bytes.TrimSpace(resp.body), []byte("<")) {
		msg = strings.TrimSpace(string(resp.body))
	}
	e := errors.NewRemote(op, resp.status, fmt.Sprintf("%d %s", resp.status, msg))
	if hint := statusHint(resp.status); hint != "" {
		e.Details["hint"] = hint
	}
	return e
}

func statusHint(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "check the username (not the email address) and regenerate the application password"
	case http.StatusForbidden:
		return "credentials are valid but the account lacks permission; try an administrator account"
	case http.StatusNotAcceptable:
		return "the server or a firewall is blocking the request or stripping the Authorization header"
	}
	return ""
}

func errorString(err error, resp *response) string {
	if err != nil {
		return err.Error()
	}
	if resp != nil {
		return strconv.Itoa(resp.status)
	}
	return ""
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsCanceled reports whether err came from context cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, errors.ErrCanceled) || stderrors.Is(err, context.Canceled)
}
