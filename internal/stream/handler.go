package stream

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// parseFeeds reads the optional ?feeds=a,b filter. Empty means all feeds.
func parseFeeds(r *http.Request) []string {
	var feeds []string
	for _, f := range strings.Split(r.URL.Query().Get("feeds"), ",") {
		if f = strings.TrimSpace(f); f != "" {
			feeds = append(feeds, f)
		}
	}
	return feeds
}

// SSEHandler streams broker events as server-sent events.
func SSEHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		feeds := parseFeeds(r)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		id, ch := broker.Subscribe(feeds...)
		defer broker.Unsubscribe(id)

		for {
			select {
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Feed, evt.Payload)
				flusher.Flush()
			}
		}
	}
}

// WebSocketHandler streams broker events over a WebSocket, one text frame
// per event: {"feed":"...","payload":{...}}.
func WebSocketHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		feeds := parseFeeds(r)

		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("stream websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		id, ch := broker.Subscribe(feeds...)
		defer broker.Unsubscribe(id)

		// Reader goroutine detects client close; incoming frames are discarded.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := wsutil.ReadClientData(conn); err != nil {
					return
				}
			}
		}()

		slog.Debug("stream websocket client attached", "subscriber_id", id, "remote", r.RemoteAddr)
		for {
			select {
			case <-closed:
				return
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				frame := fmt.Sprintf(`{"feed":%q,"payload":%s}`, evt.Feed, evt.Payload)
				if err := wsutil.WriteServerText(conn, []byte(frame)); err != nil {
					slog.Debug("stream websocket write failed", "subscriber_id", id, "error", err)
					return
				}
			}
		}
	}
}
