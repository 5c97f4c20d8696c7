package domain

import "time"

// SecurityEventType names an audit fact.
type SecurityEventType string

const (
	EventAuthSuccess        SecurityEventType = "AUTH_SUCCESS"
	EventAuthFailed         SecurityEventType = "AUTH_FAILED"
	EventAccountLocked      SecurityEventType = "ACCOUNT_LOCKED"
	EventLogout             SecurityEventType = "LOGOUT"
	EventSessionExpired     SecurityEventType = "SESSION_EXPIRED"
	EventUserCreated        SecurityEventType = "USER_CREATED"
	EventPasswordChanged    SecurityEventType = "PASSWORD_CHANGED"
	EventAllowlistChanged   SecurityEventType = "IP_ALLOWLIST_CHANGED"
	EventEntropyDegraded    SecurityEventType = "ENTROPY_DEGRADED"
	EventSystemInit         SecurityEventType = "SYSTEM_INIT"
	EventEncryptionKeyReady SecurityEventType = "ENCRYPTION_KEY_READY"
	EventSecureValueChanged SecurityEventType = "SECURE_VALUE_CHANGED"
)

// SecurityEvent is an append-only audit record. Nothing in the service mutates or deletes one.
type SecurityEvent struct {
	ID        string
	Type      SecurityEventType
	Details   string
	Timestamp time.Time
	UserID    *string
	IPAddress *string
}

// NewSecurityEvent builds an event with optional user and IP attribution. Empty strings are treated as absent.
func NewSecurityEvent(id string, eventType SecurityEventType, details string, at time.Time, userID, ip string) SecurityEvent {
	event := SecurityEvent{
		ID:        id,
		Type:      eventType,
		Details:   details,
		Timestamp: at.UTC(),
	}
	if userID != "" {
		event.UserID = &userID
	}
	if ip != "" {
		event.IPAddress = &ip
	}
	return event
}
