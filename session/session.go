// Package session persists the authenticated session record: the identity
// token, the user's salt and derived address, and display profile data. The
// record is the single source of truth for "who is signed in" across
// restarts.
package session

import "time"

// sessionKey is the single slot the session record lives under.
const sessionKey = "zkLoginData"

// UserInfo is the display profile extracted from the identity token.
type UserInfo struct {
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	Picture   string    `json:"picture,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is the persisted authenticated session.
type Session struct {
	IdentityToken string   `json:"encodedJwt"`
	Address       string   `json:"address"`
	Salt          string   `json:"userSalt"`
	User          UserInfo `json:"user"`
}

// complete reports whether the record carries everything a restored session
// needs. Partial records are treated like corrupt ones.
func (s *Session) complete() bool {
	return s != nil && s.IdentityToken != "" && s.Address != "" && s.Salt != ""
}
