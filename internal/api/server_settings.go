package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/pinguard/internal/settings"
)

func registerSettingsHandlers(api huma.API, svc Service) {
	type settingsOutput struct {
		Body settings.Settings
	}

	huma.Register(api, huma.Operation{OperationID: "get-settings", Method: http.MethodGet, Path: "/api/v1/settings", Summary: "Get guard settings", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct{}) (*settingsOutput, error) {
			cur, err := svc.GetSettings(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &settingsOutput{Body: cur}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "update-settings", Method: http.MethodPatch, Path: "/api/v1/settings", Summary: "Update guard settings", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct {
			Body struct {
				DebugMode    *bool   `json:"debug_mode,omitempty" doc:"Record debug log entries"`
				LinkBehavior *string `json:"link_behavior,omitempty" doc:"different-domains or all-links"`
			}
		}) (*settingsOutput, error) {
			cur, err := svc.UpdateSettings(ctx, input.Body.DebugMode, input.Body.LinkBehavior)
			if err != nil {
				return nil, mapErr(err)
			}
			return &settingsOutput{Body: cur}, nil
		})
}
