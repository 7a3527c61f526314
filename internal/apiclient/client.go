// Package apiclient talks to a running pinguard daemon over its HTTP API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgnsrekt/pinguard/internal/controller"
	"github.com/dgnsrekt/pinguard/internal/guard"
	"github.com/dgnsrekt/pinguard/internal/settings"
)

// APIError is a non-2xx response from the daemon.
type APIError struct {
	Status int
	Title  string
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Title)
}

type Client struct {
	base string
	http *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

// decodeError reads a huma problem document, falling back to the status text.
func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&problem); err == nil {
		if problem.Title != "" {
			apiErr.Title = problem.Title
		}
		apiErr.Detail = problem.Detail
	}
	return apiErr
}

func (c *Client) Status(ctx context.Context) (controller.Status, error) {
	var st controller.Status
	err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &st)
	return st, err
}

func (c *Client) Settings(ctx context.Context) (settings.Settings, error) {
	var cur settings.Settings
	err := c.do(ctx, http.MethodGet, "/api/v1/settings", nil, &cur)
	return cur, err
}

// UpdateSettings sends only the non-nil fields.
func (c *Client) UpdateSettings(ctx context.Context, debugMode *bool, linkBehavior *string) (settings.Settings, error) {
	body := struct {
		DebugMode    *bool   `json:"debug_mode,omitempty"`
		LinkBehavior *string `json:"link_behavior,omitempty"`
	}{debugMode, linkBehavior}
	var cur settings.Settings
	err := c.do(ctx, http.MethodPatch, "/api/v1/settings", body, &cur)
	return cur, err
}

func (c *Client) DebugLogs(ctx context.Context) ([]settings.Entry, error) {
	var out struct {
		Entries []settings.Entry `json:"entries"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/debug/logs", nil, &out)
	return out.Entries, err
}

func (c *Client) ClearDebugLogs(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/debug/logs", nil, nil)
}

// ExportDebugLogs returns the export text and the filename the daemon suggested.
func (c *Client) ExportDebugLogs(ctx context.Context) ([]byte, string, error) {
	resp, err := c.send(ctx, http.MethodGet, "/api/v1/debug/logs/export", nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read export: %w", err)
	}
	name := "pinguard-debug.txt"
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return data, name, nil
}

func (c *Client) Tabs(ctx context.Context) ([]guard.Tab, error) {
	var out struct {
		Tabs []guard.Tab `json:"tabs"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/tabs", nil, &out)
	return out.Tabs, err
}

func (c *Client) Pinned(ctx context.Context) ([]guard.PinnedEntry, error) {
	var out struct {
		Pinned []guard.PinnedEntry `json:"pinned"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/pinned", nil, &out)
	return out.Pinned, err
}

func (c *Client) Pin(ctx context.Context, id int) (guard.Tab, error) {
	var tab guard.Tab
	err := c.do(ctx, http.MethodPost, "/api/v1/tabs/"+strconv.Itoa(id)+"/pin", nil, &tab)
	return tab, err
}

func (c *Client) Unpin(ctx context.Context, id int) (guard.Tab, error) {
	var tab guard.Tab
	err := c.do(ctx, http.MethodPost, "/api/v1/tabs/"+strconv.Itoa(id)+"/unpin", nil, &tab)
	return tab, err
}

func (c *Client) Resync(ctx context.Context) ([]guard.PinnedEntry, error) {
	var out struct {
		Pinned []guard.PinnedEntry `json:"pinned"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/registry/resync", nil, &out)
	return out.Pinned, err
}
