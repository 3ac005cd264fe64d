package handler

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Register registers all command and callback handlers on the bot instance.
func (h *Handler) Register() {
	// Commands
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, h.handleStart)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/login", bot.MatchTypePrefix, h.handleLogin)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/signup", bot.MatchTypePrefix, h.handleSignup)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/google", bot.MatchTypePrefix, h.handleGoogle)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/logout", bot.MatchTypePrefix, h.handleLogout)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/whoami", bot.MatchTypePrefix, h.handleWhoami)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/projects", bot.MatchTypePrefix, h.handleProjects)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/new", bot.MatchTypePrefix, h.handleNewProject)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/open", bot.MatchTypePrefix, h.handleOpenProject)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/quality", bot.MatchTypePrefix, h.handleQuality)

	// Callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "openproj_", bot.MatchTypePrefix, h.handleOpenProjectCallback)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "quality_", bot.MatchTypePrefix, h.handleQualityCallback)
}

// answerCallback acknowledges a callback query so the client stops
// showing its spinner.
func (h *Handler) answerCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery != nil {
		b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
			CallbackQueryID: update.CallbackQuery.ID,
		})
	}
}
