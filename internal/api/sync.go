package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type syncScriptRequest struct {
	ScriptID *string `json:"scriptId"`
}

type syncDeviceRequest struct {
	Connected bool `json:"connected"`
}

type syncEventRequest struct {
	VideoTimeMs int64 `json:"videoTimeMs"`
}

type syncOffsetRequest struct {
	OffsetMs int64 `json:"offsetMs"`
}

type syncEmbedRequest struct {
	IsPlaying   bool  `json:"isPlaying"`
	VideoTimeMs int64 `json:"videoTimeMs"`
}

// handleSyncScript selects the script the sync engine follows. A null or
// empty scriptId clears the selection.
func (s *Server) handleSyncScript(w http.ResponseWriter, r *http.Request) {
	var req syncScriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ScriptID == nil || *req.ScriptID == "" {
		s.sync.SetScript(r.Context(), nil)
		writeJSON(w, http.StatusOK, s.sync.Status())
		return
	}

	script, err := s.library.Script(r.Context(), *req.ScriptID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	s.sync.SetScript(r.Context(), script)
	writeJSON(w, http.StatusOK, s.sync.Status())
}

func (s *Server) handleSyncDevice(w http.ResponseWriter, r *http.Request) {
	var req syncDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Connected {
		s.devices.Connect()
	} else {
		s.devices.Disconnect()
	}
	writeJSON(w, http.StatusOK, s.sync.Status())
}

// handleSyncEvent maps player events onto the sync engine. Play and seeked
// carry the video position; pause and ended have no body.
func (s *Server) handleSyncEvent(w http.ResponseWriter, r *http.Request) {
	event := chi.URLParam(r, "event")

	var req syncEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	switch event {
	case "play":
		s.sync.Play(ctx, req.VideoTimeMs)
	case "pause":
		s.sync.Pause(ctx)
	case "seeked":
		s.sync.Seeked(ctx, req.VideoTimeMs)
	case "ended":
		s.sync.Ended(ctx)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown player event %q", event))
		return
	}

	writeJSON(w, http.StatusOK, s.sync.Status())
}

func (s *Server) handleSyncProgress(w http.ResponseWriter, r *http.Request) {
	var req syncEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.sync.Progress(req.VideoTimeMs)
	writeJSON(w, http.StatusOK, s.sync.Status())
}

func (s *Server) handleSyncEmbed(w http.ResponseWriter, r *http.Request) {
	var req syncEmbedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.sync.EmbedSample(r.Context(), req.IsPlaying, req.VideoTimeMs)
	writeJSON(w, http.StatusOK, s.sync.Status())
}

// handleSyncOffset applies a manual timeline offset and persists it so it
// survives a restart.
func (s *Server) handleSyncOffset(w http.ResponseWriter, r *http.Request) {
	var req syncOffsetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.sync.SetManualOffset(req.OffsetMs)
	if _, err := s.settings.Upsert(r.Context(), SettingEmbedOffset, strconv.FormatInt(req.OffsetMs, 10)); err != nil {
		log.Printf("API: persisting embed offset failed: %v", err)
	}

	log.Printf("API: manual offset set to %dms", req.OffsetMs)
	writeJSON(w, http.StatusOK, s.sync.Status())
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sync.Status())
}
