package domain

import "time"

// UserSession is an in-memory proof of a prior successful login. It is never persisted.
type UserSession struct {
	ID           string
	UserID       string
	Username     string
	Role         Role
	LoginTime    time.Time
	LastActivity time.Time
	IPAddress    string
}

// ExpiredAt reports whether the idle timeout has elapsed since the last activity.
func (s UserSession) ExpiredAt(at time.Time, timeout time.Duration) bool {
	return s.LastActivity.Add(timeout).Before(at)
}

// Touch records activity on the session.
func (s *UserSession) Touch(at time.Time) {
	if at.After(s.LastActivity) {
		s.LastActivity = at
	}
}
