package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/azniosman/vms/internal/transport/http/middleware"
	"github.com/azniosman/vms/internal/usecase"
)

// AuthHandler exposes login, logout and session inspection.
type AuthHandler struct {
	auth           *usecase.Authenticator
	sessionTimeout time.Duration
}

func NewAuthHandler(auth *usecase.Authenticator, sessionTimeout time.Duration) *AuthHandler {
	return &AuthHandler{auth: auth, sessionTimeout: sessionTimeout}
}

// RegisterRoutes binds authentication routes. loginMiddlewares run ahead of the login handler only.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, requireSession gin.HandlerFunc, loginMiddlewares ...gin.HandlerFunc) {
	login := append(append([]gin.HandlerFunc{}, loginMiddlewares...), h.login)
	r.POST("/login", login...)
	r.POST("/logout", h.logout)
	r.GET("/session", requireSession, h.session)
	r.GET("/permissions", requireSession, h.permissions)
}

func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "username and password are required"))
		return
	}

	sessionID, err := h.auth.Authenticate(c.Request.Context(), req.Username, req.Password, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}

	role, err := h.auth.UserRole(sessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, LoginResponse{
		SessionID: sessionID,
		Role:      string(role),
		ExpiresIn: int(h.sessionTimeout.Seconds()),
	})
}

// logout answers 204 whether or not the session was still live, so it never reveals session state.
func (h *AuthHandler) logout(c *gin.Context) {
	sessionID, _ := middleware.BearerSessionID(c)
	h.auth.Logout(c.Request.Context(), sessionID)
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) session(c *gin.Context) {
	sess, ok := middleware.CurrentSession(c)
	if !ok {
		respondError(c, usecase.ErrInvalidSession)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{
		Valid:        true,
		UserID:       sess.UserID,
		Username:     sess.Username,
		Role:         string(sess.Role),
		LoginTime:    sess.LoginTime,
		LastActivity: sess.LastActivity,
	})
}

func (h *AuthHandler) permissions(c *gin.Context) {
	resource := strings.TrimSpace(c.Query("resource"))
	action := strings.TrimSpace(c.Query("action"))
	if resource == "" || action == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "resource and action are required"))
		return
	}

	c.JSON(http.StatusOK, PermissionResponse{
		Resource: resource,
		Action:   action,
		Allowed:  h.auth.HasPermission(middleware.CurrentSessionID(c), resource, action),
	})
}
