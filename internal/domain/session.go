package domain

// Session is the authenticated identity of a single Telegram chat,
// mirrored from the backend's auth responses and persisted so it
// survives restarts.
type Session struct {
	UserID       string
	Email        string
	DisplayName  string
	AvatarURL    string
	AccessToken  string
	RefreshToken string
}

// Name returns the best available human-readable name for the user.
func (s *Session) Name() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Email
}
