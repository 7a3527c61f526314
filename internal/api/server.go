package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/pinguard/internal/controller"
	"github.com/dgnsrekt/pinguard/internal/guard"
	"github.com/dgnsrekt/pinguard/internal/settings"
	"github.com/dgnsrekt/pinguard/internal/stream"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Service interface {
	GetSettings(ctx context.Context) (settings.Settings, error)
	UpdateSettings(ctx context.Context, debugMode *bool, linkBehavior *string) (settings.Settings, error)
	DebugLogs(ctx context.Context) ([]settings.Entry, error)
	ClearDebugLogs(ctx context.Context) error
	ExportDebugLogs(ctx context.Context) ([]byte, string, error)
	PinnedTabs(ctx context.Context) []guard.PinnedEntry
	Tabs(ctx context.Context) ([]guard.Tab, error)
	PinTab(ctx context.Context, id int) (guard.Tab, error)
	UnpinTab(ctx context.Context, id int) (guard.Tab, error)
	Resync(ctx context.Context) ([]guard.PinnedEntry, error)
	Status(ctx context.Context) (controller.Status, error)
}

// NewServer builds the HTTP handler. broker may be nil, in which case the
// debug stream endpoints are not mounted.
func NewServer(svc Service, broker *stream.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Pinguard API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", writeHTML(docsHTML))
	router.Get("/docs/stream", writeHTML(streamDocsHTML))

	if broker != nil {
		router.Get("/api/v1/debug/stream", stream.SSEHandler(broker))
		router.Get("/api/v1/debug/ws", stream.WebSocketHandler(broker))
	}

	registerSettingsHandlers(api, svc)
	registerDebugHandlers(api, svc)
	registerTabHandlers(api, svc)
	registerStatusHandlers(api, svc)

	return router
}

func writeHTML(page string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(page)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *controller.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case controller.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case controller.CodeTabNotFound:
			return huma.Error404NotFound(coded.Message)
		case controller.CodeHostUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
