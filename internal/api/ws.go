package api

import (
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/haptisync/haptisync-go/internal/services/pubsub"
)

// wsFrame is the envelope for every message pushed to a WebSocket client.
type wsFrame struct {
	Topic   pubsub.Topic `json:"topic"`
	Payload interface{}  `json:"payload"`
}

// handleWebSocket upgrades the connection and streams engine updates until
// the client goes away. Each client gets its own subscriptions; a slow
// client drops messages instead of stalling the engine.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("API: WebSocket upgrade failed: %v", err)
		return
	}

	clientID := uuid.New().String()
	log.Printf("API: WebSocket client %s connected", clientID)

	syncSub := s.bus.Subscribe(pubsub.TopicSyncStatus, 16)
	loopSub := s.bus.Subscribe(pubsub.TopicAutoplayStatus, 16)
	driftSub := s.bus.Subscribe(pubsub.TopicDriftSample, 64)
	librarySub := s.bus.Subscribe(pubsub.TopicLibraryUpdated, 16)

	unsubscribe := func() {
		s.bus.Unsubscribe(syncSub)
		s.bus.Unsubscribe(loopSub)
		s.bus.Unsubscribe(driftSub)
		s.bus.Unsubscribe(librarySub)
	}

	// Current state first so a fresh client can render immediately.
	if err := conn.WriteJSON(wsFrame{Topic: pubsub.TopicSyncStatus, Payload: s.sync.Status()}); err != nil {
		unsubscribe()
		conn.Close()
		return
	}
	if err := conn.WriteJSON(wsFrame{Topic: pubsub.TopicAutoplayStatus, Payload: s.autoplay.Status()}); err != nil {
		unsubscribe()
		conn.Close()
		return
	}

	done := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		defer conn.Close()
		for {
			select {
			case msg := <-syncSub.Channel:
				if conn.WriteJSON(wsFrame{Topic: pubsub.TopicSyncStatus, Payload: msg}) != nil {
					return
				}
			case msg := <-loopSub.Channel:
				if conn.WriteJSON(wsFrame{Topic: pubsub.TopicAutoplayStatus, Payload: msg}) != nil {
					return
				}
			case msg := <-driftSub.Channel:
				if conn.WriteJSON(wsFrame{Topic: pubsub.TopicDriftSample, Payload: msg}) != nil {
					return
				}
			case msg := <-librarySub.Channel:
				if conn.WriteJSON(wsFrame{Topic: pubsub.TopicLibraryUpdated, Payload: msg}) != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	// The read loop only detects the client closing; inbound messages are
	// ignored.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(done)
	<-writerDone
	unsubscribe()
	log.Printf("API: WebSocket client %s disconnected", clientID)
}
