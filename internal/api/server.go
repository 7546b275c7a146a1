package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/favtube/internal/backend"
	"github.com/dgnsrekt/favtube/internal/cdpcontrol"
	"github.com/dgnsrekt/favtube/internal/controller"
	"github.com/dgnsrekt/favtube/internal/router"
	"github.com/dgnsrekt/favtube/internal/session"
	"github.com/dgnsrekt/favtube/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxMessageBytes bounds a raw router message body.
const maxMessageBytes = 1 << 20

type Service interface {
	Send(ctx context.Context, req router.Request) router.Response
	Snapshot(ctx context.Context) (session.Snapshot, error)
	Rate(ctx context.Context, rating int) (session.Snapshot, error)
	AddTags(ctx context.Context, input []string) (session.Snapshot, error)
	RemoveTag(ctx context.Context, tag string) (session.Snapshot, error)
	SetNote(ctx context.Context, note string) (session.Snapshot, error)
	Suggest(ctx context.Context, query string) []string
	Health(ctx context.Context) controller.Health
	ListTabs(ctx context.Context) ([]cdpcontrol.TabInfo, error)
}

// NewServer builds the coordinator HTTP surface. events serves the SSE
// stream and may be nil, in which case /api/v1/events is not mounted.
func NewServer(svc Service, events http.Handler) http.Handler {
	r := chi.NewMux()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("FavTube Coordinator API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(r, cfg)

	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	// Raw messages bypass huma so tags may be a string or an array.
	r.Post("/api/v1/messages", messagesHandler(svc))
	if events != nil {
		r.Get("/api/v1/events", events.ServeHTTP)
	}

	registerSessionHandlers(api, svc)
	registerMiscHandlers(api, svc)

	return r
}

// messagesHandler answers every well-formed request with 200 and the
// router's {ok, ...} envelope, failures included.
func messagesHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var resp router.Response
		body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes))
		var req router.Request
		switch {
		case err != nil:
			resp = router.Response{Error: "read message: " + err.Error()}
		case json.Unmarshal(body, &req) != nil:
			resp = router.Response{Error: "invalid message: body must be a JSON object"}
		default:
			resp = svc.Send(r.Context(), req)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Debug("message response write failed", "error", err)
		}
	}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var validation *types.ValidationError
	if errors.As(err, &validation) {
		return huma.Error400BadRequest(validation.Message)
	}
	if errors.Is(err, session.ErrNoSession) {
		return huma.Error404NotFound(err.Error())
	}
	var action *session.ActionError
	if errors.As(err, &action) {
		return huma.Error502BadGateway(action.Message)
	}
	var status *backend.StatusError
	if errors.As(err, &status) {
		return huma.Error502BadGateway(status.Error())
	}
	var transport *backend.TransportError
	if errors.As(err, &transport) {
		return huma.Error502BadGateway(transport.Error())
	}
	var coded *cdpcontrol.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case cdpcontrol.CodeTabNotFound:
			return huma.Error404NotFound(coded.Message)
		case cdpcontrol.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case cdpcontrol.CodeEvalFailure, cdpcontrol.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
