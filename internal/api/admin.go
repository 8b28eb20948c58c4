package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zentiam/assistd/internal/storage"
)

func handleLearningMetrics(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := parseIntParam(r, "days", 7, 90)
		topN := parseIntParam(r, "top", 5, 50)

		report, err := deps.Metrics.Report(days, topN, time.Now().UTC())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "building report: %v", err)
			return
		}
		writeJSON(w, report)
	}
}

func handleListLearningQueue(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")
		if status == "" {
			status = storage.LearningPending
		}
		limit := parseIntParam(r, "limit", 50, 200)
		offset := parseIntParam(r, "offset", 0, 0)

		items, total, err := deps.Queue.List(status, limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing learning queue: %v", err)
			return
		}

		writeJSON(w, map[string]any{
			"items": toLearningItemViews(items),
			"total": total,
		})
	}
}

type approveRequest struct {
	ImprovedAnswer string   `json:"improved_answer"`
	Tags           []string `json:"tags"`
}

func handleApprove(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req approveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		version, err := deps.Queue.Approve(chi.URLParam(r, "id"), req.ImprovedAnswer, req.Tags)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, map[string]any{
			"status":  "approved",
			"version": version,
		})
	}
}

func handleDismiss(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Queue.Dismiss(chi.URLParam(r, "id")); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "dismissed"})
	}
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 200)
		offset := parseIntParam(r, "offset", 0, 0)

		docs, err := deps.Store.ListDocuments(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing documents: %v", err)
			return
		}

		writeJSON(w, map[string]any{"documents": toDocumentViews(docs)})
	}
}

func handleListAnswers(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 200)
		offset := parseIntParam(r, "offset", 0, 0)

		answers, total, err := deps.Store.ListApprovedAnswers(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing answers: %v", err)
			return
		}

		writeJSON(w, map[string]any{
			"answers": toAnswerViews(answers),
			"total":   total,
		})
	}
}

type answerRequest struct {
	Pattern string   `json:"question_pattern"`
	Answer  string   `json:"approved_answer"`
	Tags    []string `json:"context_tags"`
	Active  *bool    `json:"is_active"` // update only; omitted means active
}

func handleCreateAnswer(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req answerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		version, id, err := deps.Knowledge.UpsertApprovedAnswer(req.Pattern, req.Answer, req.Tags)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, map[string]any{
			"id":      id,
			"version": version,
		})
	}
}

func handleUpdateAnswer(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req answerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		active := true
		if req.Active != nil {
			active = *req.Active
		}
		version, err := deps.Knowledge.UpdateApprovedAnswer(storage.ApprovedAnswer{
			ID:      chi.URLParam(r, "id"),
			Pattern: req.Pattern,
			Answer:  req.Answer,
			Tags:    req.Tags,
			Active:  active,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, map[string]any{
			"status":  "updated",
			"version": version,
		})
	}
}

func handleDeleteAnswer(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version, err := deps.Knowledge.DeleteApprovedAnswer(chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, map[string]any{
			"status":  "deleted",
			"version": version,
		})
	}
}

func handleSheetSync(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !deps.Syncer.Configured() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no sheet endpoint configured")
			return
		}

		synced, err := deps.Syncer.Sync(r.Context())
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "sheet export failed: %v", err)
			return
		}

		writeJSON(w, map[string]any{
			"status":       "synced",
			"synced_count": synced,
		})
	}
}

func handleSheetStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := deps.Syncer.Status()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading sync status: %v", err)
			return
		}
		writeJSON(w, status)
	}
}
