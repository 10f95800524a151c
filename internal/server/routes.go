package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pathlet/internal/store"
)

// RegisterRoutes builds the gin engine.
//
//	GET  /health
//	GET  /auth/session          guard state for this client
//	POST /auth/{login,register,logout,magic-link,reset-password}
//	GET  /auth/oauth/:provider
//	GET  /auth/user             guarded
//	     /api/readings, /api/chat  guarded
func (s *Server) RegisterRoutes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware(s.logger))

	if origins, err := s.cfg.Origins(); err == nil {
		r.Use(CORSMiddleware(origins))
	} else {
		s.logger.Warn("CORS disabled", "error", err)
	}
	r.Use(ClientIDMiddleware(s.cfg.IsProduction()))

	r.GET("/health", s.healthHandler)

	guard := RequireSession(s.guards, s.cfg.GuardResolveTimeout, s.cfg.AuthPagePath, s.logger)

	authGroup := r.Group("/auth")
	{
		authGroup.GET("/session", s.sessionHandler)
		authGroup.POST("/login", s.auth.Login)
		authGroup.POST("/register", s.auth.Register)
		authGroup.POST("/logout", s.logoutHandler)
		authGroup.POST("/magic-link", s.auth.MagicLink)
		authGroup.POST("/reset-password", s.auth.ResetPassword)
		authGroup.GET("/oauth/:provider", s.auth.OAuth)
		authGroup.GET("/user", guard, s.auth.Me)
	}

	api := r.Group("/api")
	api.Use(guard)
	{
		s.readings.RegisterRoutes(api)
		s.chat.RegisterRoutes(api)
	}

	return r
}

// sessionHandler godoc
// @Summary Current session state
// @Description Returns the guard's view of this client: loading, authenticated and principal
// @Tags auth
// @Produce json
// @Success 200 {object} session.State
// @Router /auth/session [get]
func (s *Server) sessionHandler(c *gin.Context) {
	st := s.guards(c.GetString("client_id")).State()
	c.JSON(http.StatusOK, gin.H{
		"principal":        st.Principal,
		"is_authenticated": st.IsAuthenticated,
		"is_loading":       st.IsLoading,
		"phase":            st.Phase().String(),
	})
}

// logoutHandler signs the client out and drops the departing user's chat.
func (s *Server) logoutHandler(c *gin.Context) {
	if p := s.guards(c.GetString("client_id")).State().Principal; p != nil {
		s.chat.Forget(p.ID)
	}
	s.auth.Logout(c)
}

func (s *Server) healthHandler(c *gin.Context) {
	response := gin.H{"status": "up"}
	status := http.StatusOK

	if s.db != nil {
		dbHealth := s.db.Health()
		response["database"] = dbHealth
		if dbHealth["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
	}

	if s.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx, s.store); err != nil {
			response["store"] = gin.H{"status": "down", "error": err.Error()}
			status = http.StatusServiceUnavailable
		} else {
			response["store"] = gin.H{"status": "up"}
		}
	}

	if s.archive != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.archive.Health(ctx); err != nil {
			response["archive"] = gin.H{"status": "down", "error": err.Error()}
			status = http.StatusServiceUnavailable
		} else {
			response["archive"] = gin.H{"status": "up"}
		}
	}

	if status != http.StatusOK {
		response["status"] = "degraded"
	}
	c.JSON(status, response)
}
