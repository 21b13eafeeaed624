// Package session implements the committing-session identity the
// path-lock store's verification rule checks against (spec §4.7
// "Lock-verification rule", §7 lock-owner-mismatch/bad-lock-token).
//
// A Session is not persisted: it is the caller-supplied identity and set of
// lock tokens a single filesystem handle presents for the duration of one
// transaction or commit attempt.
package session

// Session identifies a committing user and the lock tokens they currently hold.
type Session struct {
	Username string
	tokens   map[string]struct{}
}

// New constructs a Session for username with no held tokens.
func New(username string) *Session {
	return &Session{Username: username, tokens: map[string]struct{}{}}
}

// AddToken records that this session holds the given lock token, normally
// because the session itself created or inherited the lock.
func (s *Session) AddToken(token string) {
	s.tokens[token] = struct{}{}
}

// RemoveToken drops a held token (e.g. after an explicit unlock).
func (s *Session) RemoveToken(token string) {
	delete(s.tokens, token)
}

// HoldsToken reports whether this session currently holds token.
func (s *Session) HoldsToken(token string) bool {
	_, ok := s.tokens[token]
	return ok
}

// Tokens returns a copy of every token this session currently holds.
func (s *Session) Tokens() []string {
	out := make([]string, 0, len(s.tokens))
	for t := range s.tokens {
		out = append(out, t)
	}
	return out
}
