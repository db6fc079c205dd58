package models

import "time"

// Session is the identity snapshot kept in the profile store. A caller is
// authenticated iff Name, Email and Token are all present; LoginTime bounds
// session validity and is enforced by the session manager, not the store.
type Session struct {
	Name      string
	Email     string
	Token     string
	LoginTime time.Time
}

func (s *Session) Authenticated() bool {
	return s != nil && s.Name != "" && s.Email != "" && s.Token != ""
}
