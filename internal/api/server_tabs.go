package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/pinguard/internal/guard"
)

func registerTabHandlers(api huma.API, svc Service) {
	type pinnedOutput struct {
		Body struct {
			Pinned []guard.PinnedEntry `json:"pinned"`
		}
	}

	pinned := func(entries []guard.PinnedEntry) *pinnedOutput {
		out := &pinnedOutput{}
		out.Body.Pinned = entries
		if out.Body.Pinned == nil {
			out.Body.Pinned = []guard.PinnedEntry{}
		}
		return out
	}

	huma.Register(api, huma.Operation{OperationID: "list-pinned", Method: http.MethodGet, Path: "/api/v1/pinned", Summary: "List guarded tabs and their canonical URLs", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*pinnedOutput, error) {
			return pinned(svc.PinnedTabs(ctx)), nil
		})

	huma.Register(api, huma.Operation{OperationID: "resync-registry", Method: http.MethodPost, Path: "/api/v1/registry/resync", Summary: "Rebuild the registry from the browser's pinned tabs", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*pinnedOutput, error) {
			entries, err := svc.Resync(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return pinned(entries), nil
		})

	type tabsOutput struct {
		Body struct {
			Tabs []guard.Tab `json:"tabs"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List browser tabs", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*tabsOutput, error) {
			tabs, err := svc.Tabs(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &tabsOutput{}
			out.Body.Tabs = tabs
			if out.Body.Tabs == nil {
				out.Body.Tabs = []guard.Tab{}
			}
			return out, nil
		})

	type tabIDInput struct {
		TabID int `path:"tab_id" doc:"Tab id as listed by /api/v1/tabs"`
	}
	type tabOutput struct {
		Body guard.Tab
	}

	huma.Register(api, huma.Operation{OperationID: "pin-tab", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/pin", Summary: "Pin a tab", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabIDInput) (*tabOutput, error) {
			tab, err := svc.PinTab(ctx, input.TabID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &tabOutput{Body: tab}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "unpin-tab", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/unpin", Summary: "Unpin a tab", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabIDInput) (*tabOutput, error) {
			tab, err := svc.UnpinTab(ctx, input.TabID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &tabOutput{Body: tab}, nil
		})
}
