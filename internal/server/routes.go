package server

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("rhythmcore API", "/openapi.json", "/docs"))
	if deps.Health != nil {
		r.Mount("/healthz", deps.Health)
	}

	r.Route("/api/stages", func(r chi.Router) {
		r.Get("/", handleListStages(deps.Stages))
		r.Get("/{id}", handleGetStage(deps.Stages))
		r.Get("/{id}/results", handleStageResults(deps.Stages))
		r.Get("/{id}/leaderboard", handleLeaderboard(deps.Stages, deps.Leaderboard))

		r.Group(func(r chi.Router) {
			r.Use(adminTokenMiddleware(deps.AdminTokenHash))
			r.Put("/{id}", handlePutStage(deps.Stages))
			r.Delete("/{id}", handleDeleteStage(deps.Stages, deps.Sessions))
		})
	})

	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", handleListSessions(deps.Sessions))
		r.Post("/", handleCreateSession(deps.Sessions))

		r.Route("/{id}", func(r chi.Router) {
			r.Use(sessionMiddleware(deps.Sessions))
			r.Get("/", handleGetSession())
			r.Delete("/", handleStopSession())
			r.Post("/input", handleInput())
			r.Get("/events", handleEvents(deps.Sessions.Broker()))
			r.Get("/ws", handleWS(logger, deps.Sessions.Broker(), deps.CORSOrigins))
		})
	})
}
