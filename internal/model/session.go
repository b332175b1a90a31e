package model

// Session is the signed-in identity a client acts as.
type Session struct {
	OwnerID     string
	DisplayName *string
	Email       *string
	AvatarURL   *string
	Anonymous   bool
}

// SessionFromUser builds the session view of a stored account.
func SessionFromUser(u User) Session {
	s := Session{
		OwnerID:   u.ID,
		Email:     u.Email,
		Anonymous: u.Anonymous,
	}
	if u.DisplayName != "" {
		name := u.DisplayName
		s.DisplayName = &name
	}
	if u.AvatarURL != "" {
		avatar := u.AvatarURL
		s.AvatarURL = &avatar
	}
	return s
}

// Label is a human-readable name for headers.
func (s Session) Label() string {
	switch {
	case s.DisplayName != nil && *s.DisplayName != "":
		return *s.DisplayName
	case s.Email != nil && *s.Email != "":
		return *s.Email
	case s.Anonymous:
		return "guest"
	default:
		return s.OwnerID
	}
}
