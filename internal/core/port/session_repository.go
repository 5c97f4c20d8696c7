package port

import "github.com/azniosman/vms/internal/core/domain"

// SessionRegistry tracks active sessions in memory.
type SessionRegistry interface {
	Create(userID, username string, role domain.Role, ip string) (string, error)
	Validate(sessionID string) bool
	Touch(sessionID string)
	Destroy(sessionID string) bool
	Get(sessionID string) (domain.UserSession, bool)
	Role(sessionID string) (domain.Role, error)
	SweepExpired() int
	Count() int
}
