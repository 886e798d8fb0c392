package strand

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/marqueetv/marquee/internal/domain"
)

const (
	// playbackTimeout is tighter than the transport default so a stalled
	// grant request fails while the player is still waiting to start
	playbackTimeout = 20 * time.Second

	pathStorefront = "/storefront"
	pathCollection = "/api/collection"
	pathDetail     = "/api/detail"
	pathSearch     = "/api/search"
	pathProfile    = "/api/profile"
	pathWatchlist  = "/api/watchlist"
	pathWatched    = "/api/watched"
	pathPlayback   = "/playback/resources"
)

// Config carries the provider endpoints and device identity
type Config struct {
	BaseURL     string // Storefront origin
	PlaybackURL string // Playback API origin
	Territory   string // ISO country code
	DeviceID    string // Persistent device identifier
}

// Client talks to the Strand storefront and playback APIs. It implements
// domain.CatalogSource, domain.PlaybackSource, domain.ProfileSource and
// domain.WatchlistSource.
type Client struct {
	transport domain.Transport
	auth      domain.Authorizer
	cfg       Config
	logger    *slog.Logger
}

// NewClient creates a new Strand API client
func NewClient(transport domain.Transport, auth domain.Authorizer, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		transport: transport,
		auth:      auth,
		cfg:       cfg,
		logger:    logger,
	}
}

// Root implements domain.CatalogSource. The storefront is a server
// rendered page, so the payload is dug out of its embedded template.
func (c *Client) Root(ctx context.Context) (*domain.CatalogPage, error) {
	body, err := c.getHTML(ctx, c.cfg.BaseURL+pathStorefront, "storefront", "")
	if err != nil {
		return nil, err
	}

	props, err := extractTemplateProps(body)
	if err != nil {
		return nil, &domain.BackendError{Op: "storefront", Err: err}
	}
	if props.Props.Storefront == nil {
		return nil, &domain.BackendError{Op: "storefront", Err: errNoEmbeddedJSON}
	}

	return mapStorefront(props.Props.Storefront, c.logger), nil
}

// Expand implements domain.CatalogSource. Detail refs expand titles
// into their seasons or episodes; everything else is a collection ref.
func (c *Client) Expand(ctx context.Context, ref, cursor string) (*domain.CatalogPage, error) {
	if ref == "" {
		return nil, &domain.NotFoundError{Kind: "ref", Ref: ref}
	}

	var op, reqURL string
	if id, ok := strings.CutPrefix(ref, refDetailPrefix); ok {
		op = "detail"
		q := url.Values{"id": {id}}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		reqURL = c.cfg.BaseURL + pathDetail + "?" + q.Encode()
	} else {
		op = "collection"
		q := url.Values{"ref": {ref}}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		reqURL = c.cfg.BaseURL + pathCollection + "?" + q.Encode()
	}

	body, err := c.getJSON(ctx, reqURL, op, ref)
	if err != nil {
		return nil, err
	}

	var dto CollectionDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, &domain.BackendError{Op: op, NodeID: ref, Err: err}
	}

	return mapCollection(&dto, c.logger), nil
}

// Search implements domain.CatalogSource.
func (c *Client) Search(ctx context.Context, query, cursor string) (*domain.CatalogPage, error) {
	q := url.Values{"phrase": {query}}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	body, err := c.getJSON(ctx, c.cfg.BaseURL+pathSearch+"?"+q.Encode(), "search", "")
	if err != nil {
		return nil, err
	}

	var dto SearchDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, &domain.BackendError{Op: "search", Err: err}
	}

	return mapSearch(&dto, c.logger), nil
}

// Playable implements domain.PlaybackSource. Grants are short-lived and
// device-bound, so every call hits the provider.
func (c *Client) Playable(ctx context.Context, itemID string) (*domain.PlayableDescriptor, error) {
	q := url.Values{
		"titleId":  {itemID},
		"deviceId": {c.cfg.DeviceID},
		"firmware": {"1"},
		"version":  {"2"},
	}
	req := &domain.Request{
		Method:  http.MethodPost,
		URL:     c.cfg.PlaybackURL + pathPlayback + "?" + q.Encode(),
		Header:  c.apiHeader(),
		Timeout: playbackTimeout,
	}
	if err := c.auth.Authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return nil, c.wrapTransport("playback", itemID, err)
	}
	if err := c.checkStatus("playback", itemID, resp); err != nil {
		return nil, err
	}

	var dto PlaybackDTO
	if err := json.Unmarshal(resp.Body, &dto); err != nil {
		return nil, &domain.BackendError{Op: "playback", NodeID: itemID, Err: err}
	}
	if dto.Error != nil {
		return nil, &domain.BackendError{
			Op:     "playback",
			NodeID: itemID,
			Err:    fmt.Errorf("%s: %s", dto.Error.Code, dto.Error.Message),
		}
	}

	d, err := mapPlayback(&dto, itemID)
	if err != nil {
		return nil, &domain.BackendError{Op: "playback", NodeID: itemID, Err: err}
	}
	d.Headers = c.playbackHeaders()
	return d, nil
}

// Profile implements domain.ProfileSource. It doubles as the liveness
// probe for restored sessions, so it is deliberately not gated on local
// session state.
func (c *Client) Profile(ctx context.Context) (*domain.RegionInfo, error) {
	body, err := c.getJSON(ctx, c.cfg.PlaybackURL+pathProfile, "profile", "")
	if err != nil {
		return nil, err
	}

	var dto ProfileDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, &domain.BackendError{Op: "profile", Err: err}
	}

	return mapProfile(&dto), nil
}

// SetWatchlist implements domain.WatchlistSource.
func (c *Client) SetWatchlist(ctx context.Context, itemID string, add bool) error {
	return c.postAction(ctx, pathWatchlist, "watchlist", itemID, struct {
		TitleID string `json:"titleId"`
		Add     bool   `json:"add"`
	}{itemID, add})
}

// SetWatched implements domain.WatchlistSource.
func (c *Client) SetWatched(ctx context.Context, itemID string, watched bool) error {
	return c.postAction(ctx, pathWatched, "watched", itemID, struct {
		TitleID string `json:"titleId"`
		Watched bool   `json:"watched"`
	}{itemID, watched})
}

// postAction sends an authorized JSON mutation to the storefront API
func (c *Client) postAction(ctx context.Context, path, op, itemID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", op, err)
	}

	header := c.apiHeader()
	header.Set("Content-Type", "application/json")
	req := &domain.Request{
		Method: http.MethodPost,
		URL:    c.cfg.BaseURL + path,
		Header: header,
		Body:   body,
	}
	if err := c.auth.Authorize(req); err != nil {
		return err
	}

	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return c.wrapTransport(op, itemID, err)
	}
	return c.checkStatus(op, itemID, resp)
}

// getHTML fetches a server rendered page
func (c *Client) getHTML(ctx context.Context, reqURL, op, nodeID string) ([]byte, error) {
	header := http.Header{}
	header.Set("Accept", "text/html")
	header.Set("Accept-Language", acceptLanguage(c.cfg.Territory))
	return c.fetch(ctx, &domain.Request{Method: http.MethodGet, URL: reqURL, Header: header}, op, nodeID)
}

// getJSON fetches an API endpoint
func (c *Client) getJSON(ctx context.Context, reqURL, op, nodeID string) ([]byte, error) {
	return c.fetch(ctx, &domain.Request{Method: http.MethodGet, URL: reqURL, Header: c.apiHeader()}, op, nodeID)
}

func (c *Client) fetch(ctx context.Context, req *domain.Request, op, nodeID string) ([]byte, error) {
	c.logger.Debug("strand request", "op", op, "method", req.Method, "url", req.URL)

	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return nil, c.wrapTransport(op, nodeID, err)
	}
	if err := c.checkStatus(op, nodeID, resp); err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// apiHeader builds the headers every API call carries
func (c *Client) apiHeader() http.Header {
	header := http.Header{}
	header.Set("Accept", "application/json")
	header.Set("Accept-Language", acceptLanguage(c.cfg.Territory))
	header.Set("X-Strand-Territory", c.cfg.Territory)
	return header
}

// playbackHeaders assembles what the player must send with manifest and
// license requests: the device identity and the session cookies
func (c *Client) playbackHeaders() map[string]string {
	headers := map[string]string{
		"X-Strand-Device": c.cfg.DeviceID,
	}
	var pairs []string
	for _, ck := range c.transport.Cookies(c.cfg.PlaybackURL) {
		pairs = append(pairs, ck.Name+"="+ck.Value)
	}
	if len(pairs) > 0 {
		headers["Cookie"] = strings.Join(pairs, "; ")
	}
	return headers
}

// wrapTransport classifies transport-level failures
func (c *Client) wrapTransport(op, nodeID string, err error) error {
	be := &domain.BackendError{Op: op, NodeID: nodeID, Err: err}
	if errors.Is(err, context.DeadlineExceeded) {
		be.Timeout = true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		be.Timeout = true
	}
	c.logger.Error("strand request failed", "op", op, "timeout", be.Timeout, "error", err)
	return be
}

// checkStatus maps non-success statuses to domain errors
func (c *Client) checkStatus(op, nodeID string, resp *domain.Response) error {
	switch resp.Status {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		c.logger.Warn("strand auth refused", "op", op, "status", resp.Status)
		return &domain.AuthError{Op: op, Reason: fmt.Sprintf("provider refused with status %d", resp.Status)}
	case http.StatusNotFound:
		ref := nodeID
		if ref == "" {
			ref = resp.URL
		}
		return &domain.NotFoundError{Kind: "item", Ref: ref}
	default:
		c.logger.Error("strand request error", "op", op, "status", resp.Status)
		return &domain.BackendError{Op: op, NodeID: nodeID, Status: resp.Status}
	}
}

// acceptLanguage derives the language header from the territory
func acceptLanguage(territory string) string {
	switch strings.ToUpper(territory) {
	case "GB", "UK":
		return "en-GB"
	case "DE":
		return "de-DE"
	case "FR":
		return "fr-FR"
	case "JP":
		return "ja-JP"
	default:
		return "en-US"
	}
}
