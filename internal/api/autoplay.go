package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/haptisync/haptisync-go/internal/device"
	"github.com/haptisync/haptisync-go/internal/services/sequence"
)

type autoplayStartRequest struct {
	ScriptID string `json:"scriptId"`
}

type autoplayModeRequest struct {
	Mode string `json:"mode"`
}

type autoplayPlaylistRequest struct {
	PlaylistID *string `json:"playlistId"`
}

func (s *Server) handleAutoplayStart(w http.ResponseWriter, r *http.Request) {
	var req autoplayStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ScriptID == "" {
		writeError(w, http.StatusBadRequest, "scriptId is required")
		return
	}

	if err := s.autoplay.Start(r.Context(), req.ScriptID); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, device.ErrNotConnected) {
			code = http.StatusConflict
		}
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.autoplay.Status())
}

func (s *Server) handleAutoplayPause(w http.ResponseWriter, r *http.Request) {
	if err := s.autoplay.Pause(r.Context()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.autoplay.Status())
}

func (s *Server) handleAutoplayResume(w http.ResponseWriter, r *http.Request) {
	if err := s.autoplay.Resume(r.Context()); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, device.ErrNotConnected) {
			code = http.StatusConflict
		}
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.autoplay.Status())
}

func (s *Server) handleAutoplayStop(w http.ResponseWriter, r *http.Request) {
	if err := s.autoplay.Stop(r.Context()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.autoplay.Status())
}

func (s *Server) handleAutoplaySkip(w http.ResponseWriter, r *http.Request) {
	if err := s.autoplay.Skip(r.Context()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.autoplay.Status())
}

// handleAutoplayMode switches the sequencing mode and persists the choice.
func (s *Server) handleAutoplayMode(w http.ResponseWriter, r *http.Request) {
	var req autoplayModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mode, err := sequence.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.autoplay.SetMode(mode)
	if _, err := s.settings.Upsert(r.Context(), SettingAutoplayMode, string(mode)); err != nil {
		log.Printf("API: persisting autoplay mode failed: %v", err)
	}

	log.Printf("API: autoplay mode set to %s", mode)
	writeJSON(w, http.StatusOK, s.autoplay.Status())
}

// handleAutoplayPlaylist selects the playlist the loop draws from. A null
// or empty playlistId widens the universe back to the whole library.
func (s *Server) handleAutoplayPlaylist(w http.ResponseWriter, r *http.Request) {
	var req autoplayPlaylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := ""
	if req.PlaylistID != nil {
		id = *req.PlaylistID
	}
	if id != "" {
		playlist, err := s.library.GetPlaylist(r.Context(), id)
		if err != nil {
			log.Printf("API: loading playlist %s failed: %v", id, err)
			writeError(w, http.StatusInternalServerError, "failed to load playlist")
			return
		}
		if playlist == nil {
			writeError(w, http.StatusNotFound, "playlist not found")
			return
		}
	}

	s.autoplay.SetPlaylist(id)
	if _, err := s.settings.Upsert(r.Context(), SettingAutoplayPlaylist, id); err != nil {
		log.Printf("API: persisting playlist selection failed: %v", err)
	}

	writeJSON(w, http.StatusOK, s.autoplay.Status())
}

func (s *Server) handleAutoplayStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.autoplay.Status())
}
