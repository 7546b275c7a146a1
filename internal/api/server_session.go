package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/favtube/internal/session"
)

type sessionOutput struct {
	Body session.Snapshot
}

type rateInput struct {
	Body struct {
		Rating int `json:"rating" doc:"Star rating, 1 to 5"`
	}
}

type addTagsInput struct {
	Body struct {
		Tags []string `json:"tags" doc:"Tags to add; each entry may hold several comma separated tags"`
	}
}

type removeTagInput struct {
	Tag string `path:"tag"`
}

type noteInput struct {
	Body struct {
		Note string `json:"note" doc:"Replacement note; empty clears it"`
	}
}

func registerSessionHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "get-session", Method: http.MethodGet, Path: "/api/v1/session", Summary: "Get the live video session", Tags: []string{"Session"}},
		func(ctx context.Context, input *struct{}) (*sessionOutput, error) {
			snap, err := svc.Snapshot(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &sessionOutput{Body: snap}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "rate-video", Method: http.MethodPost, Path: "/api/v1/session/rating", Summary: "Rate the live video", Tags: []string{"Session"}},
		func(ctx context.Context, input *rateInput) (*sessionOutput, error) {
			snap, err := svc.Rate(ctx, input.Body.Rating)
			if err != nil {
				return nil, mapErr(err)
			}
			return &sessionOutput{Body: snap}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "add-tags", Method: http.MethodPost, Path: "/api/v1/session/tags", Summary: "Add tags to the live video", Tags: []string{"Session"}},
		func(ctx context.Context, input *addTagsInput) (*sessionOutput, error) {
			snap, err := svc.AddTags(ctx, input.Body.Tags)
			if err != nil {
				return nil, mapErr(err)
			}
			return &sessionOutput{Body: snap}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "remove-tag", Method: http.MethodDelete, Path: "/api/v1/session/tags/{tag}", Summary: "Remove a tag from the live video", Tags: []string{"Session"}},
		func(ctx context.Context, input *removeTagInput) (*sessionOutput, error) {
			snap, err := svc.RemoveTag(ctx, input.Tag)
			if err != nil {
				return nil, mapErr(err)
			}
			return &sessionOutput{Body: snap}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-note", Method: http.MethodPut, Path: "/api/v1/session/note", Summary: "Replace the note on the live video", Tags: []string{"Session"}},
		func(ctx context.Context, input *noteInput) (*sessionOutput, error) {
			snap, err := svc.SetNote(ctx, input.Body.Note)
			if err != nil {
				return nil, mapErr(err)
			}
			return &sessionOutput{Body: snap}, nil
		})
}
