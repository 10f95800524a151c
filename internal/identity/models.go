package identity

import "time"

// Principal is the authenticated identity behind a session.
type Principal struct {
	ID            string         `json:"id"`
	Email         string         `json:"email"`
	EmailVerified bool           `json:"email_verified"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Username returns the username recorded at registration, if any.
func (p *Principal) Username() string {
	if p == nil {
		return ""
	}
	name, _ := p.Metadata["username"].(string)
	return name
}

// Session is an issued set of tokens plus the principal they belong to.
type Session struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenType    string     `json:"token_type"`
	ExpiresAt    time.Time  `json:"expires_at"`
	User         *Principal `json:"user"`
}

// Principal returns the session's user, or nil for a nil session.
func (s *Session) Principal() *Principal {
	if s == nil {
		return nil
	}
	return s.User
}

// ExpiresWithin reports whether the access token is expired or will be within margin.
func (s *Session) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(margin).Before(s.ExpiresAt)
}

// EventType names a session change notification.
type EventType string

const (
	EventInitialSession EventType = "INITIAL_SESSION"
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// Event is a pushed session change. Session is nil when the user is signed out.
type Event struct {
	Type    EventType
	Session *Session
}

// Credentials are an email/password pair.
type Credentials struct {
	Email    string
	Password string
}

// SignUpParams describe a new account. Metadata ends up as the principal's metadata.
type SignUpParams struct {
	Email    string
	Password string
	Metadata map[string]any
}

// SignUpResult carries the created user. Session is nil when the identity service
// requires email confirmation before the first sign-in.
type SignUpResult struct {
	User    *Principal
	Session *Session
}
