package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/azniosman/vms/internal/core/domain"
	"github.com/azniosman/vms/internal/usecase"
)

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// BearerSessionID extracts the opaque session id from "Authorization: Bearer <id>".
func BearerSessionID(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireSession validates the bearer session, refreshing its activity, and stores it on the context.
func RequireSession(auth *usecase.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, ok := BearerSessionID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing or malformed bearer session"))
			return
		}

		sess, err := auth.Session(sessionID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid or expired session"))
			return
		}

		c.Set(sessionKey, sess)
		c.Set(sessionIDKey, sessionID)
		c.Set(UserIDKey, sess.UserID)
		c.Next()
	}
}

// RequireRole rejects sessions whose role is not listed. It must run after RequireSession.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	allowed := make(map[domain.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		sess, ok := CurrentSession(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}
		if _, ok := allowed[sess.Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "insufficient permissions"))
			return
		}
		c.Next()
	}
}

// RequirePermission evaluates the role table for resource and action. It must run after RequireSession.
func RequirePermission(resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := CurrentSession(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}
		if !usecase.RoleAllows(sess.Role, resource, action) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "insufficient permissions"))
			return
		}
		c.Next()
	}
}
