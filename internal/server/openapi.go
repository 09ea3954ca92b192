package server

import (
	"encoding/json"
	"net/http"
	"strings"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/jazzify/rhythmcore/internal/handler/health"
	"github.com/jazzify/rhythmcore/internal/session"
	"github.com/jazzify/rhythmcore/internal/stage"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

type idParam struct {
	ID string `path:"id"`
}

type operation struct {
	method, path  string
	summary, desc string
	req           any
	resp          any
	status        int
	contentType   string
	errors        []int
}

var operations = []operation{
	{method: http.MethodGet, path: "/healthz", summary: "Health check",
		desc: "Reports whether the stage database and the leaderboard answer.",
		resp: health.Report{}, status: http.StatusOK, errors: []int{http.StatusServiceUnavailable}},

	{method: http.MethodGet, path: "/api/stages", summary: "List stages",
		resp: []StageSummary{}, status: http.StatusOK},
	{method: http.MethodGet, path: "/api/stages/{id}", summary: "Get stage",
		resp: stage.Stage{}, status: http.StatusOK, errors: []int{http.StatusNotFound}},
	{method: http.MethodPut, path: "/api/stages/{id}", summary: "Create or replace stage",
		desc: "Validates and stores a stage definition. Requires the admin bearer token.",
		req: stage.Stage{}, resp: stage.Stage{}, status: http.StatusOK,
		errors: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden}},
	{method: http.MethodDelete, path: "/api/stages/{id}", summary: "Delete stage",
		desc: "Deletes a stage that no running session plays. Requires the admin bearer token.",
		status: http.StatusNoContent,
		errors: []int{http.StatusNotFound, http.StatusConflict, http.StatusUnauthorized, http.StatusForbidden}},
	{method: http.MethodGet, path: "/api/stages/{id}/results", summary: "Stage results",
		desc: "Finished sessions of a stage, best score first.",
		resp: []stage.Result{}, status: http.StatusOK, errors: []int{http.StatusNotFound}},
	{method: http.MethodGet, path: "/api/stages/{id}/leaderboard", summary: "Stage leaderboard",
		desc: "Best score per player among cleared sessions.",
		resp: LeaderboardResponse{}, status: http.StatusOK, errors: []int{http.StatusNotFound, http.StatusBadGateway}},

	{method: http.MethodGet, path: "/api/sessions", summary: "List sessions",
		resp: []session.Info{}, status: http.StatusOK},
	{method: http.MethodPost, path: "/api/sessions", summary: "Start session",
		desc: "Starts a game on a stage. An invalid stage definition is rejected before anything runs.",
		req: CreateSessionRequest{}, resp: SessionResponse{}, status: http.StatusCreated,
		errors: []int{http.StatusBadRequest, http.StatusNotFound}},
	{method: http.MethodGet, path: "/api/sessions/{id}", summary: "Get session",
		resp: SessionResponse{}, status: http.StatusOK, errors: []int{http.StatusNotFound}},
	{method: http.MethodDelete, path: "/api/sessions/{id}", summary: "Stop session",
		desc: "Stops the game. Stopping a finished session changes nothing.",
		resp: SessionResponse{}, status: http.StatusOK, errors: []int{http.StatusNotFound}},
	{method: http.MethodPost, path: "/api/sessions/{id}/input", summary: "Send note",
		req: InputRequest{}, status: http.StatusAccepted,
		errors: []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusTooManyRequests}},
	{method: http.MethodGet, path: "/api/sessions/{id}/events", summary: "Event stream",
		desc: "Server-Sent Events: spawn, success, fail, enemy_defeated, cleared, game_over, state, finished.",
		status: http.StatusOK, contentType: "text/event-stream"},
	{method: http.MethodGet, path: "/api/sessions/{id}/ws", summary: "WebSocket",
		desc: "Accepts InputRequest messages and pushes the same events as the SSE stream.",
		status: http.StatusSwitchingProtocols, contentType: "text/plain"},
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "rhythmcore API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Rhythm game sessions: stages, note input and judged outcomes.")

	for _, op := range operations {
		oc, err := r.NewOperationContext(op.method, op.path)
		if err != nil {
			continue
		}
		oc.SetSummary(op.summary)
		if op.desc != "" {
			oc.SetDescription(op.desc)
		}
		if strings.Contains(op.path, "{id}") {
			oc.AddReqStructure(idParam{})
		}
		if op.req != nil {
			oc.AddReqStructure(op.req)
		}
		if op.contentType != "" {
			oc.AddRespStructure(nil, openapi.WithHTTPStatus(op.status), openapi.WithContentType(op.contentType))
		} else {
			oc.AddRespStructure(op.resp, openapi.WithHTTPStatus(op.status))
		}
		for _, status := range op.errors {
			oc.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(status))
		}
		_ = r.AddOperation(oc)
	}
	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
