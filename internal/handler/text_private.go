package handler

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/animind/codemotion-bot/internal/domain"
	"github.com/animind/codemotion-bot/internal/middleware"
	"github.com/animind/codemotion-bot/internal/service"
	tg "github.com/animind/codemotion-bot/internal/telegram"
)

// HandleTextPrivate turns a plain private message into a generation
// request: optimistic insert, one request in flight, timeout and error
// states all resolved to a visible terminal message.
func (h *Handler) HandleTextPrivate(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Chat.Type != "private" {
		return
	}

	msg := update.Message
	if strings.HasPrefix(msg.Text, "/") {
		return
	}

	chatID := msg.Chat.ID
	prompt := strings.TrimSpace(msg.Text)
	if prompt == "" {
		return
	}

	// Scratch generations work anonymously; project messages are
	// backend-owned resources and need a session.
	if _, open := h.generation.CurrentProject(chatID); open {
		if h.requireSession(ctx, b, chatID) == nil {
			return
		}
	}

	stopTyping := tg.StartTyping(ctx, b, chatID)
	defer stopTyping()

	statusMsg, _ := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   "⏳ Generating animation... This may take a few minutes.",
	})

	res, err := h.generation.Submit(ctx, chatID, prompt)
	if err != nil {
		h.reportSubmitError(ctx, b, chatID, statusMsg, err)
		return
	}

	// Replace the status message with the assistant's answer.
	if statusMsg != nil {
		h.deleteMessage(ctx, b, chatID, statusMsg.ID)
	}

	content := res.Assistant.Content
	if res.Assistant.SanitizedCode != "" && !strings.Contains(content, "```") {
		content += "\n\nCode used:\n```python\n" + res.Assistant.SanitizedCode + "\n```"
	}
	tg.SendLongMessage(ctx, b, chatID, content, nil)

	if res.VideoURL != "" {
		tg.SendVideoURL(ctx, b, chatID, res.VideoURL, "🎬 Your animation is ready.")
	}
}

func (h *Handler) reportSubmitError(ctx context.Context, b *bot.Bot, chatID int64, statusMsg *models.Message, err error) {
	var text string
	switch err {
	case domain.ErrRequestInFlight:
		text = "⏳ Wait for the previous request to finish."
	case domain.ErrEmptyPrompt:
		text = "Send a description of the animation you want."
	default:
		slog.Error("generation submit", "error", err, "chat_id", chatID,
			"session", middleware.GetSession(ctx) != nil)
		text = "❌ " + service.FailureText(err)
	}

	if statusMsg != nil {
		tg.EditMessage(ctx, b, chatID, statusMsg.ID, text)
		return
	}
	b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
}
