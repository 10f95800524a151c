package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pathlet/internal/session"
)

const (
	clientCookie    = "pathlet_client"
	clientHeader    = "X-Client-ID"
	clientCookieAge = 30 * 24 * 60 * 60
)

// GuardLookup returns the session guard of a client.
type GuardLookup func(clientID string) *session.Guard

// RequestIDMiddleware generates a unique request ID for tracing
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set("request_id", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)

		c.Next()
	}
}

// LoggingMiddleware logs every request with structured attributes
func LoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"request_id", c.GetString("request_id"),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", float64(time.Since(start).Microseconds()) / 1000,
			"client_ip", c.ClientIP(),
			"response_size", c.Writer.Size(),
		}
		if query := c.Request.URL.RawQuery; query != "" {
			attrs = append(attrs, "query", query)
		}
		if clientID := c.GetString("client_id"); clientID != "" {
			attrs = append(attrs, "client_id", clientID)
		}
		if userID := c.GetString("user_id"); userID != "" {
			attrs = append(attrs, "user_id", userID)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}

		switch {
		case status >= 500:
			logger.Error("Request failed - server error", attrs...)
		case status >= 400:
			logger.Warn("Request failed - client error", attrs...)
		default:
			logger.Info("Request completed", attrs...)
		}
	}
}

// CORSMiddleware allows the browser front end at origins to call the API with cookies
func CORSMiddleware(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", clientHeader, "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// ClientIDMiddleware identifies the calling client by cookie, or by header for
// non-browser clients, issuing a new id on first contact.
func ClientIDMiddleware(secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetHeader(clientHeader)
		if clientID == "" {
			clientID, _ = c.Cookie(clientCookie)
		}
		if _, err := uuid.Parse(clientID); err != nil {
			clientID = uuid.New().String()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(clientCookie, clientID, clientCookieAge, "/", "", secure, true)
		}

		c.Set("client_id", clientID)
		c.Next()
	}
}

// RequireSession lets a request through only when the client's guard says so.
// A still-resolving guard is given up to wait to settle first.
func RequireSession(guards GuardLookup, wait time.Duration, authPath string, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetString("client_id")
		if clientID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized: no client"})
			return
		}
		g := guards(clientID)

		if g.State().IsLoading {
			timer := time.NewTimer(wait)
			select {
			case <-g.Ready():
			case <-timer.C:
			case <-c.Request.Context().Done():
			}
			timer.Stop()
		}

		decision := g.Check(func() {
			c.Redirect(http.StatusSeeOther, authPath)
		})
		switch decision {
		case session.Pending:
			logger.Warn("Session still resolving", "client_id", clientID, "request_id", c.GetString("request_id"))
			c.Header("Retry-After", strconv.Itoa(max(1, int(wait.Seconds()))))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session is still loading"})
			return
		case session.Redirected:
			c.Abort()
			return
		case session.Denied:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		p := g.State().Principal
		if p == nil {
			// Signed out between the check and here.
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set("user_id", p.ID)
		c.Set("email", p.Email)
		c.Set("principal", p)

		c.Next()
	}
}
