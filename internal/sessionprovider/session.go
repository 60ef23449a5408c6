package sessionprovider

import (
	"github.com/ory/fosite"

	"github.com/alianzacap/jppr-front/internal/identity"
)

// Session extends fosite's default session with the identity properties
// bound at authorization time. Fosite propagates it from the
// authorization code into issued tokens.
type Session struct {
	*fosite.DefaultSession
	Props identity.Props `json:"props"`
}

// Clone implements fosite.Session
func (s *Session) Clone() fosite.Session {
	return &Session{
		DefaultSession: s.DefaultSession.Clone().(*fosite.DefaultSession),
		Props:          s.Props,
	}
}
