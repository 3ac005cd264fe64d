package handler

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/animind/codemotion-bot/internal/middleware"
)

func (h *Handler) handleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Chat.Type != "private" {
		return
	}

	chatID := update.Message.Chat.ID
	h.generation.Reset(chatID)

	greeting := "👋 Welcome to *Animind*!\n\n" +
		"Describe a mathematical animation and I'll generate and render it for you.\n" +
		"Try: _Create a rotating 3D cube_\n\n" +
		"📋 *Commands:*\n" +
		"/login — Sign in with email and password\n" +
		"/signup — Create an account\n" +
		"/google — Sign in with Google\n" +
		"/projects — Your saved projects\n" +
		"/new — Start a new project\n" +
		"/quality — Render quality\n" +
		"/whoami — Current account\n" +
		"/logout — Sign out\n\n" +
		"Just send a message to generate an animation!"

	if sess := middleware.GetSession(ctx); sess != nil {
		greeting = fmt.Sprintf("👋 Welcome back, *%s*!\n\n", sess.Name()) + greeting
	}

	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      greeting,
		ParseMode: models.ParseModeMarkdownV1,
	})
}
