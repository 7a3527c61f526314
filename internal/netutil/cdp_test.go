package netutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestProbeCDP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"Browser":"Chrome/126.0.6478.126","Protocol-Version":"1.3","webSocketDebuggerUrl":"ws://127.0.0.1:9222/devtools/browser/abc"}`))
	}))
	defer srv.Close()

	v, err := ProbeCDP(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("ProbeCDP() error = %v", err)
	}
	if v.Browser != "Chrome/126.0.6478.126" || v.ProtocolVersion != "1.3" {
		t.Fatalf("ProbeCDP() = %+v", v)
	}
}

func TestWaitForCDPRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"Browser":"Chromium/126"}`))
	}))
	defer srv.Close()

	v, err := WaitForCDP(context.Background(), srv.URL, 2*time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForCDP() error = %v", err)
	}
	if v.Browser != "Chromium/126" {
		t.Fatalf("WaitForCDP() = %+v", v)
	}
	if calls.Load() < 3 {
		t.Fatalf("calls = %d, want at least 3", calls.Load())
	}
}

func TestWaitForCDPTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := WaitForCDP(context.Background(), srv.URL, 50*time.Millisecond, 10*time.Millisecond); err == nil {
		t.Fatal("WaitForCDP() error = nil, want timeout")
	}
}

func TestListPagesKeepsOnlyPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/list" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`[
			{"id":"AAA","type":"page","url":"https://mail.example.com/inbox"},
			{"id":"SW1","type":"service_worker","url":"https://mail.example.com/sw.js"},
			{"id":"BBB","type":"page","url":"about:blank"}
		]`))
	}))
	defer srv.Close()

	pages, err := ListPages(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("ListPages() error = %v", err)
	}
	if len(pages) != 2 || pages[0].ID != "AAA" || pages[1].ID != "BBB" {
		t.Fatalf("ListPages() = %+v; want AAA, BBB", pages)
	}
}
