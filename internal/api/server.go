package api

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/trapgrid/trapgrid-go/internal/game"
	"github.com/trapgrid/trapgrid-go/internal/profile"
	"github.com/trapgrid/trapgrid-go/internal/seeds"
	"github.com/trapgrid/trapgrid-go/internal/store"
)

// Server handles HTTP requests for the game engine and its side services.
type Server struct {
	engine       *game.Engine
	seeds        *seeds.Manager
	profiles     *profile.Manager
	db           *store.DB
	recorder     *store.Recorder
	origins      []string
	errorHandler *ErrorHandler
	logger       *log.Logger
	startTime    time.Time
}

// Config wires the server's collaborators. Engine is required; history, fair
// seeds, and profiles each switch off when their collaborator is nil.
type Config struct {
	Engine   *game.Engine
	Seeds    *seeds.Manager
	Profiles *profile.Manager
	DB       *store.DB
	Recorder *store.Recorder
	Origins  []string // CORS allowlist; empty allows any origin
}

// NewServer creates a new API server
func NewServer(cfg Config) *Server {
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags)
	errorHandler := NewErrorHandler(logger)

	server := &Server{
		engine:       cfg.Engine,
		seeds:        cfg.Seeds,
		profiles:     cfg.Profiles,
		db:           cfg.DB,
		recorder:     cfg.Recorder,
		origins:      cfg.Origins,
		errorHandler: errorHandler,
		logger:       logger,
		startTime:    time.Now(),
	}

	logger.Printf(
		"server_created history_enabled=%t seeds_enabled=%t profiles_enabled=%t",
		server.db != nil,
		server.seeds != nil,
		server.profiles != nil,
	)

	return server
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.RequestLoggingMiddleware)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins(),
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	// Health and monitoring endpoints
	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/live", s.handleLiveness)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/round/start", s.handleStartRound)
		r.Post("/round/reveal", s.handleRevealTile)
		r.Post("/round/cashout", s.handleCashOut)
		r.Post("/round/reset", s.handleResetRound)

		r.Post("/claim", s.handleClaim)
		r.Get("/claim", s.handleClaimStatus)

		r.Get("/state", s.handleState)
		r.Get("/history", s.handleHistory)
		r.Get("/history/summary", s.handleHistorySummary)

		r.Get("/fair", s.handleFairInfo)
		r.Post("/fair/rotate", s.handleRotateSeed)
		r.Post("/fair/client-seed", s.handleClientSeed)
		r.Post("/fair/verify", s.handleVerifyRound)

		r.Get("/profile", s.handleGetProfile)
		r.Put("/profile", s.handlePutProfile)

		r.Get("/version", s.handleVersion)
	})

	return r
}

func (s *Server) allowedOrigins() []string {
	if len(s.origins) == 0 {
		return []string{"*"}
	}
	return s.origins
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// If encoding fails, try to write a simple error response
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// writeError writes a structured error response
func (s *Server) writeError(w http.ResponseWriter, status int, errType, message string, context map[string]interface{}) {
	errorResponse := EngineError{
		Type:    errType,
		Message: message,
		Context: context,
	}
	s.writeJSON(w, status, errorResponse)
}
