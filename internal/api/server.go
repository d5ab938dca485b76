// Package api exposes the engine over HTTP: a JSON REST surface driven by
// the player page and library tooling, plus a WebSocket stream that pushes
// status updates to connected clients.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/haptisync/haptisync-go/internal/database/repositories"
	"github.com/haptisync/haptisync-go/internal/device"
	"github.com/haptisync/haptisync-go/internal/services/autoplay"
	"github.com/haptisync/haptisync-go/internal/services/library"
	"github.com/haptisync/haptisync-go/internal/services/playsync"
	"github.com/haptisync/haptisync-go/internal/services/pubsub"
)

// Setting keys for preferences the server restores on startup.
const (
	SettingEmbedOffset      = "embed_offset_ms"
	SettingAutoplayMode     = "autoplay_mode"
	SettingAutoplayPlaylist = "autoplay_playlist_id"
)

// Server holds the service handles the HTTP handlers dispatch into.
type Server struct {
	library  *library.Service
	sync     *playsync.Service
	autoplay *autoplay.Service
	devices  *device.Manager
	settings *repositories.SettingRepository
	bus      *pubsub.PubSub
	upgrader websocket.Upgrader
}

// NewServer creates the HTTP surface over the given services.
func NewServer(
	lib *library.Service,
	sync *playsync.Service,
	loop *autoplay.Service,
	devices *device.Manager,
	settings *repositories.SettingRepository,
	bus *pubsub.PubSub,
) *Server {
	return &Server{
		library:  lib,
		sync:     sync,
		autoplay: loop,
		devices:  devices,
		settings: settings,
		bus:      bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Cross-origin policy is enforced by the CORS middleware in
			// front of the router.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Routes builds the router for the REST API and the WebSocket endpoint.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Route("/scripts", func(r chi.Router) {
			r.Get("/", s.handleListScripts)
			r.Post("/", s.handleCreateScript)
			r.Get("/{id}", s.handleGetScript)
			r.Delete("/{id}", s.handleDeleteScript)
		})

		r.Route("/playlists", func(r chi.Router) {
			r.Get("/", s.handleListPlaylists)
			r.Post("/", s.handleCreatePlaylist)
			r.Get("/{id}", s.handleGetPlaylist)
			r.Put("/{id}", s.handleUpdatePlaylist)
			r.Delete("/{id}", s.handleDeletePlaylist)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Post("/script", s.handleSyncScript)
			r.Post("/device", s.handleSyncDevice)
			r.Post("/events/{event}", s.handleSyncEvent)
			r.Post("/progress", s.handleSyncProgress)
			r.Post("/embed", s.handleSyncEmbed)
			r.Post("/offset", s.handleSyncOffset)
			r.Get("/status", s.handleSyncStatus)
		})

		r.Route("/autoplay", func(r chi.Router) {
			r.Post("/start", s.handleAutoplayStart)
			r.Post("/pause", s.handleAutoplayPause)
			r.Post("/resume", s.handleAutoplayResume)
			r.Post("/stop", s.handleAutoplayStop)
			r.Post("/skip", s.handleAutoplaySkip)
			r.Post("/mode", s.handleAutoplayMode)
			r.Post("/playlist", s.handleAutoplayPlaylist)
			r.Get("/status", s.handleAutoplayStatus)
		})
	})

	r.Get("/ws", s.handleWebSocket)

	return r
}
