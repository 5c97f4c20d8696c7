package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/azniosman/vms/internal/infra/security"
	"github.com/azniosman/vms/internal/repository"
	"github.com/azniosman/vms/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// Order matters: ErrAccountLocked and ErrInvalidCredentials both wrap ErrAuthFailure.
var commonErrorCases = []ErrorCase{
	{Err: usecase.ErrAccountLocked, Status: http.StatusLocked, Message: "account locked"},
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
	{Err: usecase.ErrAuthFailure, Status: http.StatusUnauthorized, Message: "invalid credentials"},
	{Err: usecase.ErrInvalidSession, Status: http.StatusUnauthorized, Message: "invalid or expired session"},
	{Err: usecase.ErrPermissionDenied, Status: http.StatusForbidden, Message: "insufficient permissions"},
	{Err: usecase.ErrUserExists, Status: http.StatusConflict, Message: "username already exists"},
	{Err: usecase.ErrInvalidRole, Status: http.StatusBadRequest, Message: "unknown role"},
	{Err: usecase.ErrInvalidUsername, Status: http.StatusBadRequest, Message: "invalid username"},
	{Err: usecase.ErrInvalidIP, Status: http.StatusBadRequest, Message: "invalid ip address"},
	{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "not found"},
	{Err: security.ErrDecryption, Status: http.StatusUnprocessableEntity, Message: "stored value could not be decrypted"},
	{Err: usecase.ErrPersistence, Status: http.StatusServiceUnavailable, Message: "storage unavailable"},
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}
	_ = c.Error(err)

	var policyErr *security.PasswordValidationError
	if errors.As(err, &policyErr) {
		c.JSON(http.StatusBadRequest, PasswordPolicyErrorResponse{
			Error:   policyErr.Message,
			Code:    policyErr.Code,
			TraceID: c.GetString("trace_id"),
		})
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
			return
		}
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

func respondError(c *gin.Context, err error) {
	RespondWithMappedError(c, err, commonErrorCases, http.StatusInternalServerError, "internal error")
}
