package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	// Prompt bytes exposed by the debug route.
	promptHeadLimit = 3000

	// Whisper's upload ceiling.
	maxUploadBytes = 25 << 20
)

// Transcript is the upload transcription payload: the exact ASR text
// plus a normalized rendering.
type Transcript struct {
	Raw      string `json:"raw"`
	Cleaned  string `json:"cleaned"`
	Language string `json:"language"`
}

// TranscriptResponse is the full /transcribe response envelope.
type TranscriptResponse struct {
	Kind string     `json:"kind"`
	Data Transcript `json:"data"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))

		return
	}

	// Blocks for the lifetime of the session.
	s.gateway.HandleConnection(r.Context(), conn)
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.gateway.ActiveSessions()

	s.writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.gateway.Status(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())

		return
	}

	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleGetNotes(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	text := s.gateway.Notes(id)
	if text == "" {
		// Notes outlive their session, so only a session that is
		// neither live nor remembered is a miss.
		if _, err := s.gateway.Status(id); err != nil {
			s.writeError(w, http.StatusNotFound, "session not found")

			return
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"notes":      text,
	})
}

func (s *Server) handlePutNotes(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body struct {
		Notes string `json:"notes"`
		Mode  string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed body: "+err.Error())

		return
	}

	appendMode := false
	switch body.Mode {
	case "", "overwrite":
	case "append":
		appendMode = true
	default:
		s.writeError(w, http.StatusBadRequest, "mode must be overwrite or append")

		return
	}

	normalized := s.gateway.EditNotes(id, body.Notes, appendMode)

	message := "Notes overwritten."
	if appendMode {
		message = "Notes appended."
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"session_id": id,
		"len":        len(normalized),
		"message":    message,
	})
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	draft, err := s.gateway.FinalizeSession(r.Context(), id)
	if err != nil {
		s.logger.Error("REST finalization failed",
			zap.String("session_id", id),
			zap.Error(err))
		s.writeJSON(w, http.StatusBadGateway, map[string]any{
			"ok":         false,
			"session_id": id,
			"message":    "Finalization failed: " + err.Error(),
		})

		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"session_id": id,
		"draft":      draft,
		"message":    "SOAP draft ready.",
	})
}

func (s *Server) handlePrompt(w http.ResponseWriter, _ *http.Request) {
	instructions := s.gateway.Instructions()

	head := instructions
	if runes := []rune(head); len(runes) > promptHeadLimit {
		head = string(runes[:promptHeadLimit])
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"model":  s.cfg.OpenAI.RealtimeModel,
		"voice":  s.cfg.Gateway.Voice,
		"length": len(instructions),
		"head":   head,
	})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing audio file: "+err.Error())

		return
	}
	defer file.Close()

	language := r.FormValue("language")
	if language == "" {
		language = "en"
	}

	resp, err := s.openai.CreateTranscription(r.Context(), openai.AudioRequest{
		Model:    s.cfg.OpenAI.TranscribeModel,
		Reader:   file,
		FilePath: header.Filename,
	})
	s.metrics.RecordTranscription(err != nil)
	if err != nil {
		s.logger.Error("Upload transcription failed", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "transcription failed: "+err.Error())

		return
	}

	s.writeJSON(w, http.StatusOK, TranscriptResponse{
		Kind: "transcript",
		Data: Transcript{
			Raw:      resp.Text,
			Cleaned:  strings.TrimSpace(resp.Text),
			Language: language,
		},
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": len(s.gateway.ActiveSessions()),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{"error": message})
}
