package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/haptisync/haptisync-go/internal/database/models"
)

type createScriptRequest struct {
	Name      string          `json:"name"`
	Funscript json.RawMessage `json:"funscript"`
}

// scriptResponse carries the stored script with its action track decoded
// back into JSON, so clients receive an array rather than a quoted string.
type scriptResponse struct {
	models.Script
	ActionsRaw json.RawMessage `json:"actions"`
}

func newScriptResponse(script models.Script) scriptResponse {
	raw := json.RawMessage(script.Actions)
	if len(raw) == 0 {
		raw = json.RawMessage("[]")
	}
	return scriptResponse{Script: script, ActionsRaw: raw}
}

func (s *Server) handleListScripts(w http.ResponseWriter, r *http.Request) {
	scripts, err := s.library.List(r.Context())
	if err != nil {
		log.Printf("API: listing scripts failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list scripts")
		return
	}
	writeJSON(w, http.StatusOK, scripts)
}

func (s *Server) handleCreateScript(w http.ResponseWriter, r *http.Request) {
	var req createScriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Funscript) == 0 {
		writeError(w, http.StatusBadRequest, "funscript is required")
		return
	}

	script, err := s.library.Import(r.Context(), req.Name, req.Funscript)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log.Printf("API: imported script %s (%s)", script.ID, script.Name)
	writeJSON(w, http.StatusCreated, newScriptResponse(*script))
}

func (s *Server) handleGetScript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	script, err := s.library.Get(r.Context(), id)
	if err != nil {
		log.Printf("API: loading script %s failed: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to load script")
		return
	}
	if script == nil {
		writeError(w, http.StatusNotFound, "script not found")
		return
	}
	writeJSON(w, http.StatusOK, newScriptResponse(*script))
}

func (s *Server) handleDeleteScript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	script, err := s.library.Get(r.Context(), id)
	if err != nil {
		log.Printf("API: loading script %s failed: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to load script")
		return
	}
	if script == nil {
		writeError(w, http.StatusNotFound, "script not found")
		return
	}

	if err := s.library.Delete(r.Context(), id); err != nil {
		log.Printf("API: deleting script %s failed: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to delete script")
		return
	}

	log.Printf("API: deleted script %s (%s)", script.ID, script.Name)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
