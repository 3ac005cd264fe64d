package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/animind/codemotion-bot/internal/domain"
)

// Error is the normalized shape of every non-2xx backend response:
// the status code plus the server's detail message when it sent one.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Detail)
}

func decodeError(status int, body []byte) *Error {
	var payload struct {
		Detail string `json:"detail"`
	}
	// FastAPI validation errors carry a list under detail; those fall
	// through to the generic message.
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return &Error{Status: status, Detail: payload.Detail}
	}
	return &Error{Status: status, Detail: fmt.Sprintf("request failed with status %d", status)}
}

// AuthResponse is returned by signup, login and the OAuth code
// exchange. Signup with email confirmation enabled returns only
// Message, with no token pair.
type AuthResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	User         UserInfo `json:"user"`
	Message      string   `json:"message"`
}

type UserInfo struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Metadata struct {
		FullName  string `json:"full_name"`
		AvatarURL string `json:"avatar_url"`
	} `json:"metadata"`
	CreatedAt string `json:"created_at"`
}

// Session converts an auth response into the domain session adopted by
// the store.
func (r *AuthResponse) Session() *domain.Session {
	return &domain.Session{
		UserID:       r.User.ID,
		Email:        r.User.Email,
		DisplayName:  r.User.Metadata.FullName,
		AvatarURL:    r.User.Metadata.AvatarURL,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
	}
}

type chatOut struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	UpdatedAt string `json:"updated_at"`
}

type messageOut struct {
	ID            string `json:"id"`
	Role          string `json:"role"`
	Content       string `json:"content"`
	VideoURL      string `json:"video_url"`
	SanitizedCode string `json:"sanitized_code"`
	CreatedAt     string `json:"created_at"`
}

func (m messageOut) toDomain() domain.Message {
	return domain.Message{
		ID:            m.ID,
		Role:          m.Role,
		Content:       m.Content,
		VideoURL:      m.VideoURL,
		SanitizedCode: m.SanitizedCode,
		State:         domain.MessageConfirmed,
		CreatedAt:     parseTimestamp(m.CreatedAt),
	}
}

// ProjectDetail is one backend chat with its full message history.
type ProjectDetail struct {
	Project  domain.Project
	Messages []domain.Message
}

// SendMessageResult is the backend's answer to a chat message: the
// stored assistant message plus the rendered video, if any.
type SendMessageResult struct {
	Message  domain.Message
	VideoURL string
}

// GenerateResult mirrors the generate-and-render response body.
type GenerateResult struct {
	Success       bool   `json:"success"`
	Filename      string `json:"filename"`
	LocalPath     string `json:"local_path"`
	SupabaseURL   string `json:"supabase_url"`
	Code          string `json:"code"`
	SanitizedCode string `json:"sanitized_code"`
	Error         string `json:"error"`
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
