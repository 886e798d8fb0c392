package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/net/publicsuffix"

	"github.com/marqueetv/marquee/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "Marquee/1.0"
	maxAttempts    = 6
	retryBaseWait  = 500 * time.Millisecond
	maxIdlePerHost = 20
)

// retryableStatus lists responses worth retrying. Everything else is
// handed back to the caller as-is.
var retryableStatus = map[int]bool{
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
}

// statusError marks an attempt that returned a retryable status so the
// retry loop distinguishes it from transport failures.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return http.StatusText(e.status)
}

// Client implements domain.Transport over HTTP with a shared cookie jar.
// HTTP statuses are never turned into errors here; callers branch on
// Response.Status the same way for every provider endpoint.
type Client struct {
	httpClient *http.Client
	noRedirect *http.Client
	jar        http.CookieJar
	logger     *slog.Logger
}

// NewClient creates a transport with retry and cookie handling
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	// cookiejar.New never fails with a valid public suffix list
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	base := &http.Transport{
		MaxIdleConnsPerHost: maxIdlePerHost,
	}

	return &Client{
		httpClient: &http.Client{Jar: jar, Transport: base},
		noRedirect: &http.Client{
			Jar:       jar,
			Transport: base,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		jar:    jar,
		logger: logger,
	}
}

// Do executes one request, retrying transient failures with exponential
// backoff. Request.Timeout bounds the whole call including backoff.
func (c *Client) Do(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var out *domain.Response
	err := retry.Do(
		func() error {
			resp, err := c.attempt(ctx, req)
			if err != nil {
				return err
			}
			out = resp
			if retryableStatus[resp.Status] {
				return &statusError{status: resp.Status}
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(maxAttempts),
		retry.Delay(retryBaseWait),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if !retry.IsRecoverable(err) {
				return false
			}
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("retrying request",
				"method", req.Method, "url", req.URL, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		// Retries exhausted on a retryable status: the caller still
		// gets the last response and maps the status itself.
		var se *statusError
		if errors.As(err, &se) && out != nil {
			return out, nil
		}
		return nil, err
	}
	return out, nil
}

// attempt performs a single HTTP exchange
func (c *Client) attempt(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, retry.Unrecoverable(err)
	}

	httpReq.Header.Set("User-Agent", userAgent)
	for k, vs := range req.Header {
		httpReq.Header[k] = vs
	}

	cli := c.httpClient
	if req.NoRedirect {
		cli = c.noRedirect
	}

	c.logger.Debug("provider request", "method", req.Method, "url", req.URL)

	resp, err := cli.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &domain.Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   data,
		URL:    resp.Request.URL.String(),
	}, nil
}

// Cookies returns the cookies the jar would send to rawURL.
func (c *Client) Cookies(rawURL string) []*http.Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return c.jar.Cookies(u)
}

// SetCookies seeds the jar with cookies scoped to rawURL.
func (c *Client) SetCookies(rawURL string, cookies []*http.Cookie) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	c.jar.SetCookies(u, cookies)
	return nil
}

// ClearCookies drops every cookie by swapping in a fresh jar.
func (c *Client) ClearCookies() {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	c.jar = jar
	c.httpClient.Jar = jar
	c.noRedirect.Jar = jar
}
