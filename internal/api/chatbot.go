package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zentiam/assistd/internal/ingest"
	"github.com/zentiam/assistd/internal/knowledge"
)

const maxRequestBodySize = 1 << 20 // 1MB

func handleInit(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Knowledge.SeedBaseline(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "seeding baseline answers: %v", err)
			return
		}

		crawlQueued := false
		if deps.SiteURL != "" {
			if err := ingest.EnqueueCrawl(deps.Store, deps.SiteURL); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "queueing site crawl: %v", err)
				return
			}
			crawlQueued = true
		}

		deps.Log.Info("chatbot initialized", "crawl_queued", crawlQueued)
		writeJSON(w, map[string]any{
			"status":       "initialized",
			"crawl_queued": crawlQueued,
		})
	}
}

func handleCreateSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := deps.Sessions.Create()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "creating session: %v", err)
			return
		}
		writeJSON(w, map[string]string{"session_id": id})
	}
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	Response   string `json:"response"`
	MessageSeq int    `json:"message_seq"`
	Matched    bool   `json:"matched"`
	Source     string `json:"source"`
	Intent     string `json:"intent"`
	Sentiment  string `json:"sentiment"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.SessionID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "session_id is required")
			return
		}

		reply, err := deps.Pipeline.Handle(r.Context(), req.SessionID, req.Message)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, chatResponse{
			Response:   reply.Text,
			MessageSeq: reply.MessageSeq,
			Matched:    reply.Matched,
			Source:     reply.Source,
			Intent:     reply.Intent,
			Sentiment:  reply.Sentiment,
		})
	}
}

func handleListSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 200)
		offset := parseIntParam(r, "offset", 0, 0)
		onlyWithMessages := r.URL.Query().Get("with_messages") == "true"

		summaries, err := deps.Sessions.List(limit, offset, onlyWithMessages)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing sessions: %v", err)
			return
		}

		writeJSON(w, map[string]any{"sessions": toSummaryViews(summaries)})
	}
}

func handleGetSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := deps.Sessions.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, toSessionView(sess))
	}
}

func handleCloseSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Sessions.Close(chi.URLParam(r, "id")); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "closed"})
	}
}

func handleUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Bound the body before multipart parsing buffers it; the allowance
		// on top of the cap covers multipart framing.
		if limit := deps.Knowledge.MaxUploadBytes(); limit > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, limit+maxRequestBodySize)
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeDomainError(w, knowledge.ErrFileTooLarge)
				return
			}
			httpError(w, http.StatusBadRequest, "invalid_request_error", "a multipart \"file\" field is required: %v", err)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading upload: %v", err)
			return
		}

		version, err := deps.Knowledge.Ingest(header.Filename, data)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		deps.Log.Info("document uploaded", "filename", header.Filename, "bytes", len(data), "version", version)
		writeJSON(w, map[string]any{
			"status":      "ingested",
			"filename":    header.Filename,
			"snapshot_id": version,
		})
	}
}

type feedbackRequest struct {
	SessionID  string `json:"session_id"`
	MessageSeq int    `json:"message_seq"`
	Rating     string `json:"rating"`
	Comment    string `json:"comment"`
}

func handleFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req feedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.SessionID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "session_id is required")
			return
		}

		if err := deps.Feedback.Record(req.SessionID, req.MessageSeq, req.Rating, req.Comment); err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, map[string]string{"status": "recorded"})
	}
}

func handleListFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := deps.Feedback.ListBySession(chi.URLParam(r, "session_id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, toFeedbackViews(events))
	}
}
