// Package crates is a small client for the crates.io API and docs.rs.
//
// Requests are throttled client-side, retried with backoff when the failure is
// temporary, guarded by a circuit breaker and deduplicated while in flight, so
// a burst of identical tool calls costs one upstream request.
package crates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	apperrors "github.com/flynn-ai/corrode/internal/errors"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultBaseURL     = "https://crates.io/api/v1/"
	DefaultDocsURL     = "https://docs.rs/"
	DefaultUserAgent   = "corrode-mcp/1.0 (https://github.com/flynn-ai/corrode)"
	DefaultTimeout     = 10 * time.Second
	DefaultMaxDocChars = 8000

	maxBodyBytes = 8 * 1024 * 1024
)

// Options configures a Client.
type Options struct {
	BaseURL       string
	DocsURL       string
	UserAgent     string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	MaxDocChars   int
	// MaxAttempts bounds requests per call, the first included. 1 disables
	// retries; zero keeps the default policy.
	MaxAttempts int

	// Retry overrides the policy built from MaxAttempts.
	Retry *apperrors.Policy
	// Breaker overrides the default circuit breaker settings.
	Breaker *apperrors.CircuitBreakerConfig
	// HTTPClient overrides the transport; its Timeout is left alone.
	HTTPClient *http.Client
}

// Client talks to crates.io and docs.rs. It is safe for concurrent use.
type Client struct {
	http        *http.Client
	base        *url.URL
	docs        *url.URL
	userAgent   string
	maxDocChars int

	limiter *rate.Limiter
	retry   *apperrors.Policy
	breaker *apperrors.CircuitBreaker
	flight  singleflight.Group
	logger  *slog.Logger
}

// New creates a Client.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.DocsURL == "" {
		opts.DocsURL = DefaultDocsURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.MaxDocChars <= 0 {
		opts.MaxDocChars = DefaultMaxDocChars
	}
	if opts.Retry == nil {
		opts.Retry = retryPolicy(opts.MaxAttempts)
	}

	base, err := parseBase(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	docs, err := parseBase(opts.DocsURL)
	if err != nil {
		return nil, err
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		http:        httpClient,
		base:        base,
		docs:        docs,
		userAgent:   opts.UserAgent,
		maxDocChars: opts.MaxDocChars,
		limiter:     rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		retry:       opts.Retry,
		breaker:     apperrors.NewCircuitBreaker("crates.io", opts.Breaker),
		logger:      logger,
	}, nil
}

func retryPolicy(attempts int) *apperrors.Policy {
	if attempts == 1 {
		return apperrors.NoRetry()
	}
	policy := apperrors.DefaultPolicy()
	if attempts > 1 {
		policy.MaxAttempts = attempts
	}
	policy.RetryIf = retryable
	return policy
}

func parseBase(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, apperrors.Newf(apperrors.CodeConfigInvalid, apperrors.CategoryUser, "invalid base URL %q", raw)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

// Search finds crates matching query. Zero page or perPage leaves the choice to crates.io.
func (c *Client) Search(ctx context.Context, query string, page, perPage int) (*SearchResult, error) {
	params := url.Values{"q": {query}}
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		params.Set("per_page", strconv.Itoa(perPage))
	}

	var resp searchResponse
	if err := c.getJSON(ctx, "crates", params, "", &resp); err != nil {
		return nil, err
	}
	if resp.Crates == nil {
		resp.Crates = []Crate{}
	}
	return &SearchResult{Crates: resp.Crates, Total: resp.Meta.Total}, nil
}

// Crate returns the details of one crate.
func (c *Client) Crate(ctx context.Context, name string) (*Crate, error) {
	var resp crateResponse
	if err := c.getJSON(ctx, "crates/"+url.PathEscape(name), nil, name, &resp); err != nil {
		return nil, err
	}
	return &resp.Crate, nil
}

// Versions lists every published version, newest first as crates.io orders them.
func (c *Client) Versions(ctx context.Context, name string) ([]Version, error) {
	var resp versionsResponse
	if err := c.getJSON(ctx, "crates/"+url.PathEscape(name)+"/versions", nil, name, &resp); err != nil {
		return nil, err
	}
	if resp.Versions == nil {
		resp.Versions = []Version{}
	}
	return resp.Versions, nil
}

// Dependencies lists the dependencies of one version of a crate.
func (c *Client) Dependencies(ctx context.Context, name, version string) ([]Dependency, error) {
	path := "crates/" + url.PathEscape(name) + "/" + url.PathEscape(version) + "/dependencies"
	var resp dependenciesResponse
	if err := c.getJSON(ctx, path, nil, name+"@"+version, &resp); err != nil {
		return nil, err
	}
	if resp.Dependencies == nil {
		resp.Dependencies = []Dependency{}
	}
	return resp.Dependencies, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, subject string, out any) error {
	u := c.base.JoinPath(path)
	u.RawQuery = params.Encode()

	body, err := c.get(ctx, u.String(), "application/json", subject)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.Wrap(err, apperrors.CodeUpstreamError, "decoding crates.io response", apperrors.CategoryPermanent)
	}
	return nil
}

// get fetches target through the limiter, retry policy, circuit breaker and
// in-flight deduplication. subject names the crate in not-found errors.
func (c *Client) get(ctx context.Context, target, accept, subject string) ([]byte, error) {
	v, err, shared := c.flight.Do(target, func() (any, error) {
		return apperrors.DoWithResult(ctx, c.retry, func() ([]byte, error) {
			return apperrors.ExecuteWithBreaker(c.breaker, countsAsFailure, func() ([]byte, error) {
				return c.fetch(ctx, target, accept, subject)
			})
		})
	})
	if shared {
		c.logger.Debug("shared in-flight request", slog.String("url", target))
	}
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Client) fetch(ctx context.Context, target, accept, subject string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUpstreamError, "building request", apperrors.CategoryPermanent)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.NewBuilder(apperrors.CodeNetworkUnavailable, "request to "+req.URL.Host+" failed").
			Temporary().Wrap(err).WithContext("url", target).Build()
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.NewBuilder(apperrors.CodeNetworkUnavailable, "reading response from "+req.URL.Host).
			Temporary().Wrap(err).WithContext("url", target).Build()
	}

	c.logger.Debug("upstream request",
		slog.String("url", target),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, statusError(resp, body, target, subject)
}

// statusError maps an HTTP failure onto the error taxonomy.
func statusError(resp *http.Response, body []byte, target, subject string) error {
	detail := gjson.GetBytes(body, "errors.0.detail").String()
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		msg := "not found: " + target
		if subject != "" {
			msg = fmt.Sprintf("crate %q not found", subject)
		}
		return apperrors.NewBuilder(apperrors.CodeCrateNotFound, msg).
			Permanent().WithContext("url", target).WithContext("detail", detail).
			WithSuggestion("Use search_crates to find the exact crate name").
			Build()

	case resp.StatusCode == http.StatusTooManyRequests:
		err := apperrors.RateLimit(apperrors.CodeUpstreamRateLimit,
			"upstream rate limit reached: "+detail, retryAfter(resp.Header.Get("Retry-After")))
		return err.With("url", target)

	case resp.StatusCode >= 500:
		return apperrors.NewBuilder(apperrors.CodeUpstreamError,
			fmt.Sprintf("upstream returned %d: %s", resp.StatusCode, detail)).
			Temporary().WithContext("url", target).WithContext("status", resp.StatusCode).Build()

	default:
		return apperrors.NewBuilder(apperrors.CodeUpstreamError,
			fmt.Sprintf("upstream returned %d: %s", resp.StatusCode, detail)).
			Permanent().WithContext("url", target).WithContext("status", resp.StatusCode).Build()
	}
}

func retryAfter(header string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		return max(time.Until(when), 0)
	}
	return time.Second
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// retryable retries temporary upstream failures but never a cancelled call.
func retryable(err error) bool {
	return !isContextErr(err) && apperrors.IsRetryable(err)
}

// countsAsFailure decides which errors trip the breaker: upstream trouble
// does, answers such as "not found" do not.
func countsAsFailure(err error) bool {
	if isContextErr(err) {
		return false
	}
	switch apperrors.GetCategory(err) {
	case apperrors.CategoryTemporary, apperrors.CategoryRateLimit:
		return true
	}
	return false
}
