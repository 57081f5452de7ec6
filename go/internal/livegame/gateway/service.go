package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/courtside/go/internal/auth"
	"github.com/mcdev12/courtside/go/internal/livegame/broadcast"
	"github.com/mcdev12/courtside/go/internal/livegame/registry"
	"github.com/mcdev12/courtside/go/internal/livegame/session"
)

// Registry is the part of registry.Registry the gateway drives
type Registry interface {
	Join(ctx context.Context, gameID, connID string, role session.Role, sub broadcast.Subscriber) (session.State, error)
	Leave(ctx context.Context, gameID, connID string) error
	ApplyMutation(ctx context.Context, gameID string, m session.Mutation) (session.State, error)
	Snapshot(gameID string) (session.State, int, bool)
	Participant(gameID, connID string) (session.Role, bool)
	Stats() registry.Stats
}

// Sender delivers a frame to one subscriber in broadcast order
type Sender interface {
	Send(sub broadcast.Subscriber, payload any)
}

// Config holds configuration for WebSocket connections
type Config struct {
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
	AllowedOrigins []string
}

func DefaultConfig() Config {
	return Config{
		WriteTimeout:   10 * time.Second,
		PongTimeout:    60 * time.Second,
		PingInterval:   54 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     64,
		AllowedOrigins: []string{"http://localhost:3000"},
	}
}

// Service serves the live game websocket and the session read endpoints
type Service struct {
	registry    Registry
	coordinator Sender
	verifier    *auth.Verifier
	cfg         Config
	upgrader    websocket.Upgrader

	// ctx outlives requests so pumps survive http.Server.Shutdown
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[*Connection]struct{}
	wg    sync.WaitGroup
}

func NewService(reg Registry, coordinator Sender, verifier *auth.Verifier, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = def.PongTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		registry:    reg,
		coordinator: coordinator,
		verifier:    verifier,
		cfg:         cfg,
		ctx:         ctx,
		cancel:      cancel,
		conns:       make(map[*Connection]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Router returns the HTTP handler with every gateway route
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/ws", s.HandleWebSocket)
	r.Get("/api/games/{gameID}/session", s.HandleGetSession)
	r.Get("/api/sessions", s.HandleListSessions)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           86400,
	})
	return c.Handler(r)
}

// HandleWebSocket authenticates the request and upgrades it
func (s *Service) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := s.verifier.Authenticate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already wrote the error response
		log.Error().Err(err).Str("user_id", identity.User.ID).Msg("failed to upgrade WebSocket connection")
		return
	}

	conn := newConnection(s, ws, identity)
	s.track(conn)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.untrack(conn)
		conn.run(s.ctx)
	}()
}

type envelope struct {
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type sessionResponse struct {
	GameID      string `json:"game_id"`
	HomeScore   int    `json:"home_score"`
	AwayScore   int    `json:"away_score"`
	Status      string `json:"status"`
	Revision    int64  `json:"revision"`
	ViewerCount int    `json:"viewer_count"`
}

// HandleGetSession handles GET /api/games/{gameID}/session
func (s *Service) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	state, count, ok := s.registry.Snapshot(gameID)
	if !ok {
		writeJSON(w, http.StatusNotFound, envelope{Message: "game " + gameID + " has no live session"})
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: sessionResponse{
		GameID:      state.GameID,
		HomeScore:   state.HomeScore,
		AwayScore:   state.AwayScore,
		Status:      string(state.Status),
		Revision:    state.Revision,
		ViewerCount: count,
	}})
}

// HandleListSessions handles GET /api/sessions
func (s *Service) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Data: s.registry.Stats()})
}

// Shutdown closes every open connection and waits for their pumps, or
// until ctx is done. Call it after the registry has sent forced leaves.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	n := len(s.conns)
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Int("connections", n).Msg("gateway connections closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConnectionCount returns the number of open websocket connections
func (s *Service) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Service) track(c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = struct{}{}
}

func (s *Service) untrack(c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

func (s *Service) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
