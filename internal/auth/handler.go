package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pathlet/internal/identity"
	"pathlet/internal/result"
	"pathlet/internal/store"
	"pathlet/internal/validation"
)

const loginLockTTL = 30 * time.Second

// ErrNoClient is returned by a Resolver that cannot tell which client is calling.
var ErrNoClient = errors.New("no client for request")

// Resolver finds the calling client's id and identity handle.
type Resolver func(c *gin.Context) (clientID string, id Identity, err error)

// Handler serves the auth mutations over HTTP
type Handler struct {
	resolve Resolver
	locks   store.Store
	logger  *slog.Logger
}

// NewHandler creates a new auth handler. locks guards against overlapping logins
// from the same client.
func NewHandler(resolve Resolver, locks store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{resolve: resolve, locks: locks, logger: logger}
}

func (h *Handler) service(c *gin.Context) (string, *Service, bool) {
	clientID, id, err := h.resolve(c)
	if err != nil {
		h.logger.Error("Failed to resolve client", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing client"})
		return "", nil, false
	}
	return clientID, NewService(id, h.logger.With("client_id", clientID)), true
}

func (h *Handler) bind(c *gin.Context, obj any) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}
	if verr, ok := validation.Describe(obj, err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.First(), "fields": verr.Fields})
		return false
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
	return false
}

// Login handles POST /auth/login
// @Summary Sign in with email and password
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} UserResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if !h.bind(c, &req) {
		return
	}
	clientID, svc, ok := h.service(c)
	if !ok {
		return
	}

	release, acquired := h.lock(c.Request.Context(), clientID)
	if !acquired {
		c.JSON(http.StatusConflict, gin.H{"error": "a login is already in progress"})
		return
	}
	defer release()

	res := svc.Login(c.Request.Context(), req)
	if !res.OK() {
		h.fail(c, res.Err)
		return
	}
	c.JSON(http.StatusOK, res.Value)
}

// lock takes the per-client login lock. A store failure does not block the login.
func (h *Handler) lock(ctx context.Context, clientID string) (func(), bool) {
	if h.locks == nil {
		return func() {}, true
	}
	key := "pathlet:login-lock:" + clientID
	ok, err := h.locks.SetNX(ctx, key, "1", loginLockTTL)
	if err != nil {
		h.logger.Warn("Login lock unavailable", "client_id", clientID, "error", err)
		return func() {}, true
	}
	if !ok {
		return nil, false
	}
	return func() {
		if err := h.locks.Delete(context.WithoutCancel(ctx), key); err != nil {
			h.logger.Warn("Failed to release login lock", "client_id", clientID, "error", err)
		}
	}, true
}

// Register handles POST /auth/register
// @Summary Create an account
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Account details"
// @Success 201 {object} RegisterResponse
// @Failure 400 {object} map[string]string
// @Router /auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if !h.bind(c, &req) {
		return
	}
	_, svc, ok := h.service(c)
	if !ok {
		return
	}

	res := svc.Register(c.Request.Context(), req)
	if !res.OK() {
		h.fail(c, res.Err)
		return
	}
	c.JSON(http.StatusCreated, res.Value)
}

// Logout handles POST /auth/logout
func (h *Handler) Logout(c *gin.Context) {
	_, svc, ok := h.service(c)
	if !ok {
		return
	}
	res := svc.Logout(c.Request.Context())
	if !res.OK() {
		h.fail(c, res.Err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}

// MagicLink handles POST /auth/magic-link
func (h *Handler) MagicLink(c *gin.Context) {
	var req EmailRequest
	if !h.bind(c, &req) {
		return
	}
	_, svc, ok := h.service(c)
	if !ok {
		return
	}
	res := svc.SendMagicLink(c.Request.Context(), req.Email)
	if !res.OK() {
		h.fail(c, res.Err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "check your email for the login link"})
}

// ResetPassword handles POST /auth/reset-password
func (h *Handler) ResetPassword(c *gin.Context) {
	var req EmailRequest
	if !h.bind(c, &req) {
		return
	}
	_, svc, ok := h.service(c)
	if !ok {
		return
	}
	res := svc.ResetPassword(c.Request.Context(), req.Email)
	if !res.OK() {
		h.fail(c, res.Err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "check your email for the password reset link"})
}

// OAuth handles GET /auth/oauth/:provider by redirecting to the provider's consent page.
func (h *Handler) OAuth(c *gin.Context) {
	_, svc, ok := h.service(c)
	if !ok {
		return
	}
	res := svc.ProviderURL(c.Param("provider"))
	if !res.OK() {
		h.fail(c, res.Err)
		return
	}
	c.Redirect(http.StatusFound, res.Value)
}

// Me handles GET /auth/user
func (h *Handler) Me(c *gin.Context) {
	_, svc, ok := h.service(c)
	if !ok {
		return
	}
	res := svc.CurrentUser(c.Request.Context())
	if !res.OK() {
		h.fail(c, res.Err)
		return
	}
	c.JSON(http.StatusOK, res.Value)
}

func (h *Handler) fail(c *gin.Context, f *result.Failure) {
	body := gin.H{"error": f.Message}
	if len(f.Fields) > 0 {
		body["fields"] = f.Fields
	}
	c.JSON(StatusFor(f), body)
}

// StatusFor picks the HTTP status for a failed mutation.
func StatusFor(f *result.Failure) int {
	if len(f.Fields) > 0 || errors.Is(f.Cause, identity.ErrUnsupportedProvider) {
		return http.StatusBadRequest
	}

	var ae *identity.AuthError
	if !errors.As(f.Cause, &ae) {
		return http.StatusInternalServerError
	}
	switch {
	case ae.InvalidCredentials(), errors.Is(ae, identity.ErrNoSession):
		return http.StatusUnauthorized
	case ae.EmailNotConfirmed():
		return http.StatusForbidden
	case ae.RateLimited():
		return http.StatusTooManyRequests
	case ae.Code == identity.CodeNetwork:
		return http.StatusBadGateway
	case ae.Status >= 400 && ae.Status < 500:
		return ae.Status
	default:
		return http.StatusInternalServerError
	}
}
