package domain

import "time"

// MessageState tracks optimistic-update reconciliation for locally
// inserted messages. Messages loaded from the backend are always
// confirmed.
type MessageState string

const (
	MessagePending   MessageState = "pending"
	MessageConfirmed MessageState = "confirmed"
	MessageFailed    MessageState = "failed"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	ID            string
	Role          string
	Content       string
	VideoURL      string
	SanitizedCode string
	State         MessageState
	CreatedAt     time.Time
}

// Project is a backend-owned chat; the bot caches only the currently
// open one per Telegram chat.
type Project struct {
	ID        string
	Title     string
	UpdatedAt time.Time
}

// GenerationRequest is the payload of one generate-and-render call.
// Ephemeral, never persisted; at most one in flight per Telegram chat.
type GenerationRequest struct {
	Prompt     string
	SceneClass string
	Quality    string
	Filename   string
	MaxRetries int
}
