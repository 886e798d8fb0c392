package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const detectTimeout = 10 * time.Second

// Detect probes a storefront URL to confirm a Strand backend answers
// there before any account traffic is sent. Returns the strategy to
// configure or an error when nothing recognizable responds.
func Detect(ctx context.Context, baseURL string) (Strategy, error) {
	baseURL = strings.TrimRight(baseURL, "/")

	client := &http.Client{
		Timeout: detectTimeout,
	}

	// Try the rendered storefront first (unauthenticated)
	storefrontErr := tryStorefront(ctx, client, baseURL)
	if storefrontErr == nil {
		return StrategyNativeDirect, nil
	}

	// Try the JSON API edge (answers 401 without a session, which
	// still proves the backend is there)
	apiErr := tryAPI(ctx, client, baseURL)
	if apiErr == nil {
		return StrategyNativeDirect, nil
	}

	return "", fmt.Errorf("could not detect backend: tried storefront (%v), api (%v)", storefrontErr, apiErr)
}

// tryStorefront checks that the base URL serves the HTML storefront
func tryStorefront(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/storefront", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		return fmt.Errorf("not a storefront page (Content-Type: %s)", ct)
	}
	return nil
}

// tryAPI checks that the JSON API edge responds at all
func tryAPI(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/search?phrase=ping", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusUnauthorized, http.StatusForbidden:
		return nil
	default:
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
}
