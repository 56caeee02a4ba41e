package testutil

// DefaultSession is the token FixedSession falls back to.
const DefaultSession = "test-session-default"

// FixedSession hands out the same store session token on every call, so
// event logs of repeated runs compare equal.
//
// Implements store.SessionGenerator. Stateless and safe for concurrent use.
type FixedSession struct {
	token string
}

// NewFixedSession creates a FixedSession. An empty token uses DefaultSession.
func NewFixedSession(token string) *FixedSession {
	if token == "" {
		token = DefaultSession
	}
	return &FixedSession{token: token}
}

// Generate returns the fixed token.
func (s *FixedSession) Generate() string {
	return s.token
}
