// Package reddit fetches account metadata and recent activity from Reddit's
// JSON API. It implements activity.Provider.
package reddit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/kalambet/sentinel/internal/activity"
)

const (
	DefaultBaseURL   = "https://www.reddit.com"
	DefaultOAuthURL  = "https://oauth.reddit.com"
	DefaultTokenURL  = "https://www.reddit.com/api/v1/access_token"
	DefaultUserAgent = "sentinel/0.1 (account scoring)"
	DefaultTimeout   = 30 * time.Second

	// maxListing is the largest page Reddit serves for user listings.
	maxListing = 100
)

type Options struct {
	BaseURL   string
	OAuthURL  string
	TokenURL  string
	UserAgent string

	// ClientID and ClientSecret enable app-only OAuth. Without them the
	// public JSON endpoints are used.
	ClientID     string
	ClientSecret string

	Timeout           time.Duration
	RequestsPerSecond float64
	MaxRetries        int
	RetryWaitMin      time.Duration
	Logger            *slog.Logger
}

// Client is safe for concurrent use.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

var _ activity.Provider = (*Client)(nil)

type LeveledSlog struct {
	inner *slog.Logger
}

// re-writes HTTP client ERROR to WARN level (because of retries)
func (l LeveledSlog) Error(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l LeveledSlog) Warn(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l LeveledSlog) Info(msg string, keysAndValues ...any) {
	l.inner.Info(msg, keysAndValues...)
}

func (l LeveledSlog) Debug(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, keysAndValues...)
}

// retryPolicy retries connection errors and 5xx, but leaves 429 to the
// caller so rate limiting surfaces as a provider error.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.OAuthURL == "" {
		opts.OAuthURL = DefaultOAuthURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = DefaultTokenURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("subsystem", "reddit")

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = cleanhttp.DefaultPooledTransport()
	retryClient.RetryMax = opts.MaxRetries
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = 10 * opts.RetryWaitMin
	retryClient.Logger = retryablehttp.LeveledLogger(LeveledSlog{inner: logger})
	retryClient.CheckRetry = retryPolicy

	hc := retryClient.StandardClient()
	hc.Timeout = opts.Timeout

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Client{
		opts:    opts,
		http:    hc,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

func (c *Client) authenticated() bool {
	return c.opts.ClientID != "" && c.opts.ClientSecret != ""
}

// accessToken returns a cached app-only token, fetching a new one when it
// is within a minute of expiring.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Add(time.Minute).Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	req.SetBasicAuth(c.opts.ClientID, c.opts.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &activity.ProviderError{Op: "token", Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &activity.ProviderError{Op: "token", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &activity.ProviderError{Op: "token", StatusCode: resp.StatusCode}
	}

	token := gjson.GetBytes(body, "access_token").String()
	if token == "" {
		return "", &activity.ProviderError{Op: "token", StatusCode: resp.StatusCode, Err: fmt.Errorf("response has no access_token")}
	}
	expiresIn := gjson.GetBytes(body, "expires_in").Int()
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	c.token = token
	c.tokenExpiry = time.Now().Add(time.Duration(expiresIn) * time.Second)
	return token, nil
}

func (c *Client) dropToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// get fetches path and returns the body of a 200 response. A 404 maps to
// activity.ErrNotFound.
func (c *Client) get(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &activity.ProviderError{Op: op, Err: err}
	}

	base := c.opts.BaseURL
	var token string
	if c.authenticated() {
		t, err := c.accessToken(ctx)
		if err != nil {
			return nil, err
		}
		token = t
		base = c.opts.OAuthURL
	} else {
		path += ".json"
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("raw_json", "1")
	u := base + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", op, err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(op, "error").Inc()
		return nil, &activity.ProviderError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	requestsTotal.WithLabelValues(op, fmt.Sprint(resp.StatusCode)).Inc()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, activity.ErrNotFound
	case http.StatusTooManyRequests:
		c.logger.Warn("rate limited", "op", op, "retry_after", resp.Header.Get("Retry-After"))
		return nil, &activity.ProviderError{Op: op, StatusCode: resp.StatusCode, RateLimited: true}
	case http.StatusUnauthorized:
		c.dropToken()
		return nil, &activity.ProviderError{Op: op, StatusCode: resp.StatusCode}
	default:
		return nil, &activity.ProviderError{Op: op, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &activity.ProviderError{Op: op, Err: fmt.Errorf("reading body: %w", err)}
	}
	if !gjson.ValidBytes(body) {
		return nil, &activity.ProviderError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("invalid JSON response")}
	}
	return body, nil
}
