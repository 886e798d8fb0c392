package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marqueetv/marquee/internal/domain"
	"github.com/marqueetv/marquee/internal/logging"
)

// roundTripFunc lets tests stand in for the network.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestClient(fn roundTripFunc) *Client {
	c := NewClient(logging.NullLogger())
	c.httpClient.Transport = fn
	c.noRedirect.Transport = fn
	return c
}

func textResponse(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

func TestDoRetriesTransientStatus(t *testing.T) {
	attempts := 0
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		attempts++
		if attempts == 1 {
			return textResponse(req, http.StatusServiceUnavailable, "down"), nil
		}
		return textResponse(req, http.StatusOK, "ok"), nil
	})

	resp, err := c.Do(context.Background(), &domain.Request{
		Method: http.MethodGet,
		URL:    "https://www.strand.tv/storefront",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, 2, attempts)
}

func TestDoPassesThroughClientErrors(t *testing.T) {
	attempts := 0
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		attempts++
		return textResponse(req, http.StatusNotFound, "nope"), nil
	})

	resp, err := c.Do(context.Background(), &domain.Request{
		Method: http.MethodGet,
		URL:    "https://www.strand.tv/detail/tt9999",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, 1, attempts, "4xx responses must not be retried")
}

func TestDoTimeout(t *testing.T) {
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})

	_, err := c.Do(context.Background(), &domain.Request{
		Method:  http.MethodGet,
		URL:     "https://www.strand.tv/storefront",
		Timeout: 50 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestCookiesPersistAcrossRequests(t *testing.T) {
	var checkCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/set":
			http.SetCookie(w, &http.Cookie{Name: "session-id", Value: "abc123", Path: "/"})
		case "/check":
			if ck, err := r.Cookie("session-id"); err == nil {
				checkCookie = ck.Value
			}
		}
	}))
	defer srv.Close()

	c := NewClient(logging.NullLogger())

	_, err := c.Do(context.Background(), &domain.Request{Method: http.MethodGet, URL: srv.URL + "/set"})
	require.NoError(t, err)

	_, err = c.Do(context.Background(), &domain.Request{Method: http.MethodGet, URL: srv.URL + "/check"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", checkCookie, "jar should replay cookies set by the server")

	found := false
	for _, ck := range c.Cookies(srv.URL) {
		if ck.Name == "session-id" {
			found = true
		}
	}
	assert.True(t, found, "Cookies should expose the stored session-id")
}

func TestSetAndClearCookies(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie("session-id"); err == nil {
			seen = append(seen, ck.Value)
		} else {
			seen = append(seen, "")
		}
	}))
	defer srv.Close()

	c := NewClient(logging.NullLogger())
	require.NoError(t, c.SetCookies(srv.URL, []*http.Cookie{{Name: "session-id", Value: "restored"}}))

	_, err := c.Do(context.Background(), &domain.Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)

	c.ClearCookies()

	_, err = c.Do(context.Background(), &domain.Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Equal(t, "restored", seen[0])
	assert.Equal(t, "", seen[1], "cleared jar must not replay cookies")
}

func TestDoNoRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			http.Redirect(w, r, "/home", http.StatusFound)
		case "/home":
			io.WriteString(w, "landed")
		}
	}))
	defer srv.Close()

	c := NewClient(logging.NullLogger())

	resp, err := c.Do(context.Background(), &domain.Request{
		Method:     http.MethodGet,
		URL:        srv.URL + "/login",
		NoRedirect: true,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.Status)
	assert.Equal(t, "/home", resp.Header.Get("Location"))

	resp, err = c.Do(context.Background(), &domain.Request{
		Method: http.MethodGet,
		URL:    srv.URL + "/login",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "landed", string(resp.Body))
	assert.True(t, strings.HasSuffix(resp.URL, "/home"), "final URL should reflect the redirect")
}
