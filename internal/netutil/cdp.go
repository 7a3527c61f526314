package netutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// BrowserVersion is the subset of /json/version pinguard reports.
type BrowserVersion struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// PageTarget is one page entry of /json/list.
type PageTarget struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

// ProbeCDP fetches /json/version from a CDP HTTP endpoint.
func ProbeCDP(ctx context.Context, baseURL string) (BrowserVersion, error) {
	var v BrowserVersion
	if err := getJSON(ctx, baseURL, "/json/version", &v); err != nil {
		return BrowserVersion{}, err
	}
	return v, nil
}

// ListPages returns the page targets from /json/list in the browser's order.
// Reading the list over HTTP does not create or attach to any target.
func ListPages(ctx context.Context, baseURL string) ([]PageTarget, error) {
	var all []PageTarget
	if err := getJSON(ctx, baseURL, "/json/list", &all); err != nil {
		return nil, err
	}
	pages := make([]PageTarget, 0, len(all))
	for _, t := range all {
		if t.Type == "page" {
			pages = append(pages, t)
		}
	}
	return pages, nil
}

func getJSON(ctx context.Context, baseURL, path string, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	url := strings.TrimRight(baseURL, "/") + path
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", url, err)
	}
	return nil
}

// WaitForCDP polls ProbeCDP until it succeeds or timeout elapses.
func WaitForCDP(ctx context.Context, baseURL string, timeout, interval time.Duration) (BrowserVersion, error) {
	deadline := time.After(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		v, err := ProbeCDP(ctx, baseURL)
		if err == nil {
			return v, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return BrowserVersion{}, ctx.Err()
		case <-deadline:
			return BrowserVersion{}, fmt.Errorf("CDP did not become ready within %s at %s: %w", timeout, baseURL, lastErr)
		case <-ticker.C:
		}
	}
}
