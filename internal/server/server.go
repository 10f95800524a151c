package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"pathlet/internal/auth"
	"pathlet/internal/chat"
	"pathlet/internal/config"
	"pathlet/internal/database"
	"pathlet/internal/readings"
	"pathlet/internal/store"
)

// Server holds the dependencies for the HTTP server
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	guards   GuardLookup
	auth     *auth.Handler
	readings *readings.Handler
	chat     *chat.Handler

	db      database.Service
	store   store.Store
	archive HealthChecker
}

// HealthChecker is a dependency that can report whether it is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps are the collaborators the routes are served by. DB, Store and Archive are
// optional and only reported on by the health endpoint.
type Deps struct {
	Guards   GuardLookup
	Auth     *auth.Handler
	Readings *readings.Handler
	Chat     *chat.Handler
	DB       database.Service
	Store    store.Store
	Archive  HealthChecker
}

// Timeouts holds the http.Server timeouts
type Timeouts struct {
	Read  time.Duration
	Write time.Duration
	Idle  time.Duration
}

// LoadTimeoutsFromEnv loads server timeouts from environment variables
func LoadTimeoutsFromEnv() Timeouts {
	return Timeouts{
		Read:  config.GetEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		Write: config.GetEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
		Idle:  config.GetEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
	}
}

// New wires the Pathlet API. A new reading restarts the user's chat so it talks
// about the latest insights.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if deps.Readings != nil && deps.Chat != nil {
		chatHandler := deps.Chat
		deps.Readings.OnCreate(func(r *readings.Reading) {
			chatHandler.Forget(r.UserID)
		})
	}
	return &Server{
		cfg:      cfg,
		logger:   logger,
		guards:   deps.Guards,
		auth:     deps.Auth,
		readings: deps.Readings,
		chat:     deps.Chat,
		db:       deps.DB,
		store:    deps.Store,
		archive:  deps.Archive,
	}
}

// HTTPServer configures an http.Server serving the API on cfg.Port.
func (s *Server) HTTPServer(t Timeouts) *http.Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.RegisterRoutes(),
		ReadTimeout:       t.Read,
		WriteTimeout:      t.Write,
		IdleTimeout:       t.Idle,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	s.logger.Info("HTTP server configured", "port", s.cfg.Port)
	return srv
}
