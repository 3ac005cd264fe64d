package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/animind/codemotion-bot/internal/api"
	"github.com/animind/codemotion-bot/internal/auth"
	"github.com/animind/codemotion-bot/internal/config"
	"github.com/animind/codemotion-bot/internal/middleware"
	tg "github.com/animind/codemotion-bot/internal/telegram"
)

func (h *Handler) handleLogin(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	args := commandArgs(update.Message.Text)

	// The message contains a password; get it out of the chat history.
	h.deleteMessage(ctx, b, chatID, update.Message.ID)

	if len(args) != 2 {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "Usage: /login email password",
		})
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, config.RequestTimeout)
	defer cancel()

	sess, err := h.auth.Login(reqCtx, chatID, args[0], args[1])
	if err != nil {
		slog.Error("login failed", "error", err, "chat_id", chatID)
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "❌ " + authErrorText(err, "Login failed. Check your credentials."),
		})
		return
	}

	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      fmt.Sprintf("✅ Signed in as *%s*.", sess.Name()),
		ParseMode: models.ParseModeMarkdownV1,
	})
}

func (h *Handler) handleSignup(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	args := commandArgs(update.Message.Text)

	h.deleteMessage(ctx, b, chatID, update.Message.ID)

	if len(args) < 2 {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "Usage: /signup email password [full name]",
		})
		return
	}
	email, password := args[0], args[1]
	fullName := strings.Join(args[2:], " ")

	reqCtx, cancel := context.WithTimeout(ctx, config.RequestTimeout)
	defer cancel()

	outcome, sess, err := h.auth.Signup(reqCtx, chatID, email, password, fullName)
	if err != nil {
		slog.Error("signup failed", "error", err, "chat_id", chatID)
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "❌ " + authErrorText(err, "Signup failed."),
		})
		return
	}

	if outcome == auth.SignupConfirmationPending {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "📧 Account created. Check your email to confirm it, then /login.",
		})
		return
	}

	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      fmt.Sprintf("✅ Account created. Signed in as *%s*.", sess.Name()),
		ParseMode: models.ParseModeMarkdownV1,
	})
}

func (h *Handler) handleGoogle(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	reqCtx, cancel := context.WithTimeout(ctx, config.RequestTimeout)
	defer cancel()

	authURL, err := h.auth.GoogleAuthURL(reqCtx, chatID)
	if err != nil {
		slog.Error("google auth url", "error", err, "chat_id", chatID)
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "❌ " + authErrorText(err, "Could not start Google sign-in."),
		})
		return
	}

	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   "🔐 Open the link to sign in with Google. I'll confirm here once you're back.",
		ReplyMarkup: tg.InlineKeyboard(
			tg.ButtonRow(tg.URLButton("Sign in with Google", authURL)),
		),
	})
}

func (h *Handler) handleLogout(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	if err := h.auth.Logout(ctx, chatID); err != nil {
		slog.Error("logout failed", "error", err, "chat_id", chatID)
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "❌ Could not sign out. Try again.",
		})
		return
	}
	h.generation.Reset(chatID)

	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   "👋 Signed out. Use /login or /google to sign in again.",
	})
}

func (h *Handler) handleWhoami(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	sess := middleware.GetSession(ctx)
	if sess == nil {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "You're not signed in. Use /login, /signup or /google.",
		})
		return
	}

	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      fmt.Sprintf("👤 *%s*\n📧 %s", sess.Name(), sess.Email),
		ParseMode: models.ParseModeMarkdownV1,
	})
}

// commandArgs returns the words after the command itself.
func commandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) <= 1 {
		return nil
	}
	return fields[1:]
}

// authErrorText prefers the backend's detail message over the generic
// fallback.
func authErrorText(err error, fallback string) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return fallback
}

func (h *Handler) deleteMessage(ctx context.Context, b *bot.Bot, chatID int64, messageID int) {
	if _, err := b.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	}); err != nil {
		slog.Debug("delete message", "error", err, "chat_id", chatID)
	}
}
