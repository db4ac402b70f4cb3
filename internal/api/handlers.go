package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/harvestflow/harvestflow/internal/engine"
	"github.com/harvestflow/harvestflow/internal/models"
	"github.com/harvestflow/harvestflow/internal/util"
)

// turnRequest is the body of POST /sessions/{id}/turns. Message is a pointer
// so a missing field can be told apart from a deliberately empty answer.
type turnRequest struct {
	Message *string `json:"message"`
}

// turnResponse is the result payload of a conversation turn.
type turnResponse struct {
	SessionID     string                `json:"session_id"`
	AssistantText string                `json:"assistant_text"`
	CurrentURL    string                `json:"current_url"`
	NextFieldKey  string                `json:"next_field_key,omitempty"`
	Done          bool                  `json:"done"`
	Intent        models.Intent        `json:"intent,omitempty"`
	Collected     models.CollectedData `json:"collected,omitempty"`
}

type resetRequest struct {
	KeepHistory bool `json:"keep_history"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}

// createSessionHandler starts a new conversation session.
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := util.GenerateSessionID()
	state := models.NewConversationState(id)
	if err := s.st.SaveSession(r.Context(), state); err != nil {
		slog.Error("Server.createSessionHandler: failed to save session", "sessionID", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create session"))
		return
	}
	slog.Info("Server.createSessionHandler: session created", "sessionID", id)
	writeJSONResponse(w, http.StatusCreated, models.Success(map[string]string{"session_id": id}))
}

// listSessionsHandler returns the IDs of all stored sessions.
func (s *Server) listSessionsHandler(w http.ResponseWriter, r *http.Request) {
	ids, err := s.st.ListSessionIDs(r.Context())
	if err != nil {
		slog.Error("Server.listSessionsHandler: failed to list sessions", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list sessions"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{"session_ids": ids, "count": len(ids)}))
}

// getSessionHandler returns the full stored state of one session.
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, err := s.st.GetSession(r.Context(), id)
	if err != nil {
		slog.Error("Server.getSessionHandler: failed to load session", "sessionID", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	if state == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(state))
}

// turnHandler runs one conversation turn for a session.
func (s *Server) turnHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON body"))
		return
	}
	if req.Message == nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: message"))
		return
	}

	state, err := s.st.GetSession(r.Context(), id)
	if err != nil {
		slog.Error("Server.turnHandler: failed to load session", "sessionID", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	if state == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}

	// Finalized sessions are answered here without touching the state
	// machine; nothing changes, so nothing needs persisting.
	if state.Finalized {
		slog.Info("Server.turnHandler: turn on finalized session", "sessionID", id)
		writeJSONResponse(w, http.StatusOK, models.Success(turnResponse{
			SessionID:     id,
			AssistantText: engine.AlreadyCompleteNotice(state),
			CurrentURL:    state.CurrentURL,
			Done:          true,
			Intent:        state.Intent,
			Collected:     state.Collected,
		}))
		return
	}

	result := s.eng.ProcessTurn(r.Context(), state, *req.Message)
	if result.IntentFellBack {
		slog.Warn("Server.turnHandler: intent classification fell back to default", "sessionID", id, "intent", state.Intent)
	}

	if err := s.st.SaveSession(r.Context(), state); err != nil {
		slog.Error("Server.turnHandler: failed to persist session after turn", "sessionID", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to persist session"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(turnResponse{
		SessionID:     id,
		AssistantText: result.AssistantText,
		CurrentURL:    result.CurrentURL,
		NextFieldKey:  result.NextFieldKey,
		Done:          result.Done,
		Intent:        state.Intent,
		Collected:     state.Collected,
	}))
}

// resetSessionHandler clears a session's form progress so a new form can be
// filled, optionally keeping the message history.
func (s *Server) resetSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req resetRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON body"))
			return
		}
	}

	state, err := s.st.GetSession(r.Context(), id)
	if err != nil {
		slog.Error("Server.resetSessionHandler: failed to load session", "sessionID", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	if state == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}

	s.eng.Reset(state, req.KeepHistory)
	if err := s.st.SaveSession(r.Context(), state); err != nil {
		slog.Error("Server.resetSessionHandler: failed to persist session", "sessionID", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to persist session"))
		return
	}
	slog.Info("Server.resetSessionHandler: session reset", "sessionID", id, "keepHistory", req.KeepHistory)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session reset", map[string]string{"session_id": id}))
}

// deleteSessionHandler removes a session. Deleting an unknown session is not
// an error.
func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.st.DeleteSession(r.Context(), id); err != nil {
		slog.Error("Server.deleteSessionHandler: failed to delete session", "sessionID", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete session"))
		return
	}
	slog.Info("Server.deleteSessionHandler: session deleted", "sessionID", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session deleted", map[string]string{"session_id": id}))
}
