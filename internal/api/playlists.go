package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type playlistRequest struct {
	Name        string   `json:"name"`
	Description *string  `json:"description"`
	ScriptIDs   []string `json:"scriptIds"`
}

func (s *Server) handleListPlaylists(w http.ResponseWriter, r *http.Request) {
	playlists, err := s.library.ListPlaylists(r.Context())
	if err != nil {
		log.Printf("API: listing playlists failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list playlists")
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	playlist, err := s.library.CreatePlaylist(r.Context(), req.Name, req.Description, req.ScriptIDs)
	if err != nil {
		log.Printf("API: creating playlist failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create playlist")
		return
	}

	log.Printf("API: created playlist %s (%s)", playlist.ID, playlist.Name)
	writeJSON(w, http.StatusCreated, playlist)
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

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
	writeJSON(w, http.StatusOK, playlist)
}

func (s *Server) handleUpdatePlaylist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req playlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	playlist, err := s.library.UpdatePlaylist(r.Context(), id, req.Name, req.Description, req.ScriptIDs)
	if err != nil {
		log.Printf("API: updating playlist %s failed: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to update playlist")
		return
	}
	if playlist == nil {
		writeError(w, http.StatusNotFound, "playlist not found")
		return
	}

	log.Printf("API: updated playlist %s (%s)", playlist.ID, playlist.Name)
	writeJSON(w, http.StatusOK, playlist)
}

func (s *Server) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

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

	if err := s.library.DeletePlaylist(r.Context(), id); err != nil {
		log.Printf("API: deleting playlist %s failed: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to delete playlist")
		return
	}

	// A deleted playlist cannot stay selected as the loop universe.
	if s.autoplay.PlaylistID() == id {
		s.autoplay.SetPlaylist("")
		if _, err := s.settings.Upsert(r.Context(), SettingAutoplayPlaylist, ""); err != nil {
			log.Printf("API: clearing playlist setting failed: %v", err)
		}
	}

	log.Printf("API: deleted playlist %s (%s)", playlist.ID, playlist.Name)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
