package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/azniosman/vms/internal/core/domain"
	"github.com/azniosman/vms/internal/transport/http/middleware"
	"github.com/azniosman/vms/internal/usecase"
)

// UserHandler provisions accounts and rotates passwords.
type UserHandler struct {
	users *usecase.UserService
}

func NewUserHandler(users *usecase.UserService) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "username, password and role are required"))
		return
	}

	role, ok := domain.ParseRole(req.Role)
	if !ok {
		respondError(c, usecase.ErrInvalidRole)
		return
	}

	sess, _ := middleware.CurrentSession(c)
	if role == domain.RoleSuperAdmin && sess.Role != domain.RoleSuperAdmin {
		respondError(c, usecase.ErrPermissionDenied)
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), usecase.CreateUserInput{
		Username: req.Username,
		Password: req.Password,
		Role:     role,
	}, sess.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Role:      string(user.Role),
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt,
	})
}

func (h *UserHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "current_password and new_password are required"))
		return
	}

	err := h.users.ChangePassword(c.Request.Context(), middleware.CurrentSessionID(c), req.CurrentPassword, req.NewPassword, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
