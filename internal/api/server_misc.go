package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/favtube/internal/cdpcontrol"
	"github.com/dgnsrekt/favtube/internal/controller"
)

type suggestInput struct {
	Query string `query:"q" doc:"Prefix or substring to match"`
}

type suggestOutput struct {
	Body struct {
		Tags []string `json:"tags"`
	}
}

type healthOutput struct {
	Body controller.Health
}

type tabsOutput struct {
	Body struct {
		Tabs []cdpcontrol.TabInfo `json:"tabs"`
	}
}

func registerMiscHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "suggest-tags", Method: http.MethodGet, Path: "/api/v1/tags/suggest", Summary: "Suggest known tags", Tags: []string{"Tags"}},
		func(ctx context.Context, input *suggestInput) (*suggestOutput, error) {
			out := &suggestOutput{}
			out.Body.Tags = svc.Suggest(ctx, input.Query)
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/api/v1/health", Summary: "Coordinator and backend health", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			return &healthOutput{Body: svc.Health(ctx)}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List browser tabs and the watched one", Tags: []string{"Browser"}},
		func(ctx context.Context, input *struct{}) (*tabsOutput, error) {
			tabs, err := svc.ListTabs(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &tabsOutput{}
			out.Body.Tabs = tabs
			return out, nil
		})
}
