package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/pinguard/internal/settings"
)

func registerDebugHandlers(api huma.API, svc Service) {
	type logsOutput struct {
		Body struct {
			Entries []settings.Entry `json:"entries"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "list-debug-logs", Method: http.MethodGet, Path: "/api/v1/debug/logs", Summary: "List debug log entries", Tags: []string{"Debug"}},
		func(ctx context.Context, input *struct{}) (*logsOutput, error) {
			entries, err := svc.DebugLogs(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &logsOutput{}
			out.Body.Entries = entries
			if out.Body.Entries == nil {
				out.Body.Entries = []settings.Entry{}
			}
			return out, nil
		})

	type clearOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "clear-debug-logs", Method: http.MethodDelete, Path: "/api/v1/debug/logs", Summary: "Clear the debug log", Tags: []string{"Debug"}},
		func(ctx context.Context, input *struct{}) (*clearOutput, error) {
			if err := svc.ClearDebugLogs(ctx); err != nil {
				return nil, mapErr(err)
			}
			out := &clearOutput{}
			out.Body.Status = "cleared"
			return out, nil
		})

	type exportOutput struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}

	huma.Register(api, huma.Operation{OperationID: "export-debug-logs", Method: http.MethodGet, Path: "/api/v1/debug/logs/export", Summary: "Download the debug log as text", Tags: []string{"Debug"}},
		func(ctx context.Context, input *struct{}) (*exportOutput, error) {
			data, name, err := svc.ExportDebugLogs(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &exportOutput{
				ContentType:        "text/plain; charset=utf-8",
				ContentDisposition: `attachment; filename="` + name + `"`,
				Body:               data,
			}, nil
		})
}
