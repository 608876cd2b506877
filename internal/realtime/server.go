package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

// Authorizer reports whether an actor holds moderator rights in a session.
// Injected so the transport layer stays ignorant of the permission model.
type Authorizer func(ctx context.Context, sessionID, actorID string) bool

type Server struct {
	hub           *Hub
	rdb           *redis.Client
	ctx           context.Context
	allowedOrigin string
	isModerator   Authorizer

	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, rdb *redis.Client, ctx context.Context, allowedOrigin string, isModerator Authorizer) *Server {
	s := &Server{
		hub:           hub,
		rdb:           rdb,
		ctx:           ctx,
		allowedOrigin: allowedOrigin,
		isModerator:   isModerator,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if s.allowedOrigin == "" {
				// За gateway'ом это ок.
				return true
			}
			return r.Header.Get("Origin") == s.allowedOrigin
		},
	}
	return s
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWS)

	return r
}

// RunRedisSubscriber routes room.* pub/sub traffic into the hub.
func (s *Server) RunRedisSubscriber() {
	sub := s.rdb.PSubscribe(s.ctx, channelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for msg := range ch {
		room, mod := roomFromChannel(msg.Channel)
		key := room
		if mod {
			key = room + modSuffix
		}
		s.hub.Broadcast(key, []byte(msg.Payload))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"service": "songvote",
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "missing session", http.StatusBadRequest)
		return
	}
	actorID := r.Header.Get("X-User-Id")
	if actorID == "" {
		actorID = r.URL.Query().Get("user")
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("songvote: ws upgrade: %v", err)
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	rooms := []string{sessionID}
	if actorID != "" && s.isModerator != nil && s.isModerator(r.Context(), sessionID, actorID) {
		rooms = append(rooms, sessionID+modSuffix)
	}
	s.hub.register <- subscription{client: client, rooms: rooms}

	welcome := map[string]any{
		"type": "welcome",
		"payload": map[string]any{
			"sessionId": sessionID,
			"now":       time.Now().UTC().Format(time.RFC3339Nano),
		},
	}
	if b, err := json.Marshal(welcome); err == nil {
		client.send <- b
	}

	// Запускаем две горутины: читаем и пишем.
	go client.writePump()
	go client.readPump()
}
