package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/moshesimon/OpenWork-sub000/internal/store"
	"github.com/moshesimon/OpenWork-sub000/internal/tools"
	"github.com/moshesimon/OpenWork-sub000/internal/turn"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

type runTurnRequest struct {
	UserID         string `json:"user_id"`
	Input          string `json:"input"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type runTurnResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	Reply  string `json:"reply"`
}

// handleRunTurn runs a user-command turn synchronously and returns the
// reply. Turn failures surface as 502 after the runner has already recorded
// the terminal task state.
func (s *Server) handleRunTurn(w http.ResponseWriter, r *http.Request) {
	var req runTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	if req.UserID == "" || req.Input == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id and input are required")
		return
	}

	outcome, err := s.runner.Run(r.Context(), turn.Trigger{
		UserID:    req.UserID,
		Source:    store.SourceUserCommand,
		Ref:       req.IdempotencyKey,
		InputText: req.Input,
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", req.UserID).Msg("turn_request_failed")
		if outcome != nil {
			writeJSON(w, http.StatusBadGateway, runTurnResponse{
				TaskID: outcome.TaskID,
				Status: string(outcome.Status),
				Reply:  outcome.Reply,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "turn_failed", "could not run the turn")
		return
	}
	writeJSON(w, http.StatusOK, runTurnResponse{
		TaskID: outcome.TaskID,
		Status: string(outcome.Status),
		Reply:  outcome.Reply,
	})
}

type ingestEventRequest struct {
	UserID          string `json:"user_id"`
	Source          string `json:"source"`
	TriggerRef      string `json:"trigger_ref,omitempty"`
	ConversationID  string `json:"conversation_id"`
	SourceMessageID string `json:"source_message_id"`
	SenderID        string `json:"sender_id"`
	Body            string `json:"body"`
}

// handleIngestEvent admits a system-event turn. Duplicate deliveries of the
// same event collapse onto the original task and still report handled.
func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var req ingestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	if req.UserID == "" || req.ConversationID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id and conversation_id are required")
		return
	}
	source := store.TriggerSource(req.Source)
	if !source.IsSystemEvent() {
		writeError(w, http.StatusBadRequest, "invalid_request", "source must be a system event source")
		return
	}

	outcome, err := s.runner.Run(r.Context(), turn.Trigger{
		UserID:    req.UserID,
		Source:    source,
		Ref:       req.TriggerRef,
		InputText: req.Body,
		Event: &tools.SourceEvent{
			ConversationID: req.ConversationID,
			MessageID:      req.SourceMessageID,
			SenderID:       req.SenderID,
		},
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", req.UserID).Msg("event_ingest_failed")
		writeError(w, http.StatusInternalServerError, "event_failed", "could not handle the event")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"handled": true,
		"task_id": outcome.TaskID,
		"status":  string(outcome.Status),
	})
}

func (s *Server) handleTaskView(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id query parameter is required")
		return
	}

	view, err := s.runner.GetTaskView(r.Context(), taskID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no such task")
			return
		}
		log.Error().Err(err).Str("task_id", taskID).Msg("task_view_failed")
		writeError(w, http.StatusInternalServerError, "internal", "could not load task view")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleBriefings(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id query parameter is required")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	items, err := s.store.ListBriefings(r.Context(), userID, limit)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("briefings_list_failed")
		writeError(w, http.StatusInternalServerError, "internal", "could not list briefings")
		return
	}
	out := make([]map[string]interface{}, 0, len(items))
	for _, b := range items {
		out = append(out, map[string]interface{}{
			"id":                 b.ID,
			"importance":         string(b.Importance),
			"summary":            b.Summary,
			"recommended_action": b.RecommendedAction,
			"source_message_id":  b.SourceMessageID,
			"created_at":         b.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"briefings": out})
}
