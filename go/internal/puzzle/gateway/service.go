package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/events"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/imagesource"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/session"
)

// Service is the puzzle gateway: RPCs, REST lookups and the WebSocket relay
type Service struct {
	store             session.Store
	connectionManager *ConnectionManager
	registry          *Registry
	rpc               *PuzzleService
	clock             clockwork.Clock
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	// PublicURL is the externally reachable base URL used in join links
	PublicURL      string
	AllowedOrigins []string
}

// Deps are the collaborators the gateway talks to
type Deps struct {
	Store     session.Store
	Resolver  imagesource.Resolver
	Scores    Scores
	Publisher events.Publisher
	Clock     clockwork.Clock
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		PublicURL:        "http://localhost:8080",
		AllowedOrigins:   []string{"*"},
	}
}

// NewService creates a new gateway service
func NewService(config Config, deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NewLogPublisher()
	}

	registry := NewRegistry(deps.Store, deps.Publisher, deps.Clock)
	cm := NewConnectionManager(config.ConnectionConfig, registry, deps.Clock)
	registry.attach(cm)

	return &Service{
		store:             deps.Store,
		connectionManager: cm,
		registry:          registry,
		rpc:               NewPuzzleService(deps.Store, deps.Resolver, deps.Scores, deps.Publisher, deps.Clock, config.PublicURL),
		clock:             deps.Clock,
	}
}

// Start runs the broadcast loop until ctx is done, then closes every room
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting puzzle gateway service")

	s.connectionManager.Start(ctx)

	log.Info().Msg("puzzle gateway service shutting down")
	return s.Stop()
}

// Stop closes every open room
func (s *Service) Stop() error {
	s.registry.Close()
	log.Info().Msg("puzzle gateway service stopped")
	return nil
}

// Router builds the HTTP routes
func (s *Service) Router() *httprouter.Router {
	router := httprouter.New()

	for path, h := range s.rpc.Handlers() {
		router.Handler(http.MethodPost, path, h)
	}

	router.GET("/api/sessions/:id", s.handleGetSession)
	router.GET("/api/sessions/:id/qr", s.handleSessionQR)
	router.GET("/ws/session", s.handleSessionSocket)
	router.GET("/ws/stats", s.handleConnectionStats)
	router.GET("/health", handleHealth)

	return router
}

// Handler wraps the router with CORS
func (s *Service) Handler(allowedOrigins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: allowedOrigins,
		AllowedHeaders: []string{"*"},
		MaxAge:         int((24 * time.Hour).Seconds()),
	})
	return c.Handler(s.Router())
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() Stats {
	return s.connectionManager.GetConnectionStats()
}

// LeaderboardUpdated tells every connected browser that a ranking changed
func (s *Service) LeaderboardUpdated(puzzleID string) {
	msg, err := newMessage(MessageLeaderboardUpdated, "", s.clock.Now(), LeaderboardUpdatedPayload{PuzzleID: puzzleID})
	if err != nil {
		log.Error().Err(err).Msg("failed to build leaderboard message")
		return
	}
	s.connectionManager.BroadcastToAll(msg)
}
