package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/azniosman/vms/internal/transport/http/middleware"
	"github.com/azniosman/vms/internal/usecase"
)

// AdminHandler manages the login allowlist and encrypted settings.
type AdminHandler struct {
	allowlist *usecase.IPAllowlist
	secrets   *usecase.SecureValues
}

func NewAdminHandler(allowlist *usecase.IPAllowlist, secrets *usecase.SecureValues) *AdminHandler {
	return &AdminHandler{allowlist: allowlist, secrets: secrets}
}

// RegisterRoutes binds admin routes. The caller applies authentication and role checks to r.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup) {
	if h.allowlist != nil {
		r.GET("/allowlist", h.listAllowlist)
		r.POST("/allowlist", h.addAllowlist)
		r.DELETE("/allowlist/:ip", h.removeAllowlist)
	}
	if h.secrets != nil {
		r.PUT("/secure-values/:key", h.putSecureValue)
		r.GET("/secure-values/:key", h.getSecureValue)
	}
}

func (h *AdminHandler) listAllowlist(c *gin.Context) {
	entries, err := h.allowlist.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if entries == nil {
		entries = []string{}
	}
	c.JSON(http.StatusOK, AllowlistResponse{Addresses: entries})
}

func (h *AdminHandler) addAllowlist(c *gin.Context) {
	var req AllowlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "ip is required"))
		return
	}
	if err := h.allowlist.Add(c.Request.Context(), req.IP, c.GetString(middleware.UserIDKey)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) removeAllowlist(c *gin.Context) {
	removed, err := h.allowlist.Remove(c.Request.Context(), c.Param("ip"), c.GetString(middleware.UserIDKey))
	if err != nil {
		respondError(c, err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "address not in allowlist"))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) putSecureValue(c *gin.Context) {
	var req SecureValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "value is required"))
		return
	}
	if err := h.secrets.Set(c.Request.Context(), c.Param("key"), req.Value, c.GetString(middleware.UserIDKey)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) getSecureValue(c *gin.Context) {
	key := c.Param("key")
	value, err := h.secrets.Get(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, SecureValueResponse{Key: key, Value: value})
}
