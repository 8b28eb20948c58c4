// Package api exposes the chatbot and admin HTTP surfaces plus the MCP
// server. The visitor-facing /chatbot routes are open; everything under
// /admin requires the bearer token.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zentiam/assistd/internal/chat"
	"github.com/zentiam/assistd/internal/feedback"
	"github.com/zentiam/assistd/internal/knowledge"
	"github.com/zentiam/assistd/internal/learning"
	"github.com/zentiam/assistd/internal/metrics"
	"github.com/zentiam/assistd/internal/session"
	"github.com/zentiam/assistd/internal/sheets"
	"github.com/zentiam/assistd/internal/storage"
)

type Deps struct {
	Store     *storage.Store
	Knowledge *knowledge.Store
	Sessions  *session.Manager
	Pipeline  *chat.Pipeline
	Feedback  *feedback.Collector
	Queue     *learning.Queue
	Metrics   *metrics.Aggregator
	Syncer    *sheets.Syncer

	AdminTokenHash string
	SiteURL        string
	Log            *slog.Logger
}

func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Route("/chatbot", func(r chi.Router) {
		r.Post("/init", handleInit(deps))
		r.Post("/session", handleCreateSession(deps))
		r.Post("/chat", handleChat(deps))
		r.Get("/sessions", handleListSessions(deps))
		r.Get("/session/{id}", handleGetSession(deps))
		r.Post("/session/{id}/close", handleCloseSession(deps))
		r.Post("/upload", handleUpload(deps))
		r.Post("/feedback", handleFeedback(deps))
		r.Get("/feedback/{session_id}", handleListFeedback(deps))
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(AdminAuth(deps.AdminTokenHash))

		r.Get("/learning-metrics", handleLearningMetrics(deps))
		r.Get("/learning-queue", handleListLearningQueue(deps))
		r.Post("/learning-queue/{id}/approve", handleApprove(deps))
		r.Post("/learning-queue/{id}/dismiss", handleDismiss(deps))

		r.Get("/documents", handleListDocuments(deps))

		r.Get("/approved-answers", handleListAnswers(deps))
		r.Post("/approved-answers", handleCreateAnswer(deps))
		r.Put("/approved-answers/{id}", handleUpdateAnswer(deps))
		r.Delete("/approved-answers/{id}", handleDeleteAnswer(deps))

		r.Post("/sheets/sync", handleSheetSync(deps))
		r.Get("/sheets/status", handleSheetStatus(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
