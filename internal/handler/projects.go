package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/animind/codemotion-bot/internal/config"
	"github.com/animind/codemotion-bot/internal/domain"
	"github.com/animind/codemotion-bot/internal/middleware"
	tg "github.com/animind/codemotion-bot/internal/telegram"
)

// requireSession sends a sign-in hint and returns nil when the chat is
// unauthenticated.
func (h *Handler) requireSession(ctx context.Context, b *bot.Bot, chatID int64) *domain.Session {
	sess := middleware.GetSession(ctx)
	if sess == nil {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "🔒 You need to sign in first. Use /login or /google.",
		})
	}
	return sess
}

func (h *Handler) handleProjects(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	if h.requireSession(ctx, b, chatID) == nil {
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, config.RequestTimeout)
	defer cancel()

	projects, err := h.apiClient.ListProjects(reqCtx, chatID)
	if err != nil {
		slog.Error("list projects", "error", err, "chat_id", chatID)
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "❌ Could not load your projects. Try again, or /login if your session expired.",
		})
		return
	}

	if len(projects) == 0 {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "You have no projects yet. Create one with /new or just send a prompt.",
		})
		return
	}

	if len(projects) > config.ProjectsPerPage {
		projects = projects[:config.ProjectsPerPage]
	}

	var rows [][]models.InlineKeyboardButton
	for _, p := range projects {
		rows = append(rows, tg.ButtonRow(
			tg.InlineButton(p.Title, "openproj_"+p.ID),
		))
	}

	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        "📂 *Your projects:*",
		ParseMode:   models.ParseModeMarkdownV1,
		ReplyMarkup: tg.InlineKeyboard(rows...),
	})
}

func (h *Handler) handleNewProject(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	if h.requireSession(ctx, b, chatID) == nil {
		return
	}

	title := strings.Join(commandArgs(update.Message.Text), " ")
	if title == "" {
		title = "New Chat"
	}

	reqCtx, cancel := context.WithTimeout(ctx, config.RequestTimeout)
	defer cancel()

	project, err := h.apiClient.CreateProject(reqCtx, chatID, title)
	if err != nil {
		slog.Error("create project", "error", err, "chat_id", chatID)
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "❌ Could not create the project.",
		})
		return
	}

	h.openProject(ctx, b, chatID, project.ID)
}

func (h *Handler) handleOpenProject(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	if h.requireSession(ctx, b, chatID) == nil {
		return
	}

	args := commandArgs(update.Message.Text)
	if len(args) != 1 {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "Usage: /open <number from /projects>",
		})
		return
	}

	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "Usage: /open <number from /projects>",
		})
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, config.RequestTimeout)
	defer cancel()

	projects, err := h.apiClient.ListProjects(reqCtx, chatID)
	if err != nil || n > len(projects) {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "❌ Project not found. Check /projects.",
		})
		return
	}

	h.openProject(ctx, b, chatID, projects[n-1].ID)
}

func (h *Handler) handleOpenProjectCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	h.answerCallback(ctx, b, update)

	var chatID int64
	if msg := update.CallbackQuery.Message.Message; msg != nil {
		chatID = msg.Chat.ID
	}
	if chatID == 0 {
		return
	}

	projectID := strings.TrimPrefix(update.CallbackQuery.Data, "openproj_")
	h.openProject(ctx, b, chatID, projectID)
}

func (h *Handler) openProject(ctx context.Context, b *bot.Bot, chatID int64, projectID string) {
	reqCtx, cancel := context.WithTimeout(ctx, config.RequestTimeout)
	defer cancel()

	detail, err := h.generation.OpenProject(reqCtx, chatID, projectID)
	if err != nil {
		slog.Error("open project", "error", err, "chat_id", chatID, "project_id", projectID)
		text := "❌ Could not open the project."
		if err == domain.ErrProjectNotFound {
			text = "❌ Project not found or access denied."
		}
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
		return
	}

	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text: fmt.Sprintf("📂 Opened *%s* (%d messages).\nSend a prompt to continue.",
			detail.Project.Title, len(detail.Messages)),
		ParseMode: models.ParseModeMarkdownV1,
	})

	if url := h.generation.VideoURL(chatID); url != "" {
		tg.SendVideoURL(ctx, b, chatID, url, "🎬 Latest render in this project.")
	}
}

func (h *Handler) handleQuality(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	if args := commandArgs(update.Message.Text); len(args) == 1 && config.IsValidQuality(args[0]) {
		if err := h.store.SetQuality(ctx, chatID, args[0]); err != nil {
			slog.Error("set quality", "error", err, "chat_id", chatID)
			return
		}
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      fmt.Sprintf("✅ Render quality set to *%s*.", args[0]),
			ParseMode: models.ParseModeMarkdownV1,
		})
		return
	}

	current := h.store.Quality(ctx, chatID)

	var row []models.InlineKeyboardButton
	for _, q := range config.Qualities {
		label := q
		if q == current {
			label = "• " + q + " •"
		}
		row = append(row, tg.InlineButton(label, "quality_"+q))
	}

	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        fmt.Sprintf("🎚 Render quality: *%s*", current),
		ParseMode:   models.ParseModeMarkdownV1,
		ReplyMarkup: tg.InlineKeyboard(tg.ButtonRow(row...)),
	})
}

func (h *Handler) handleQualityCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	h.answerCallback(ctx, b, update)

	var chatID int64
	if msg := update.CallbackQuery.Message.Message; msg != nil {
		chatID = msg.Chat.ID
	}
	if chatID == 0 {
		return
	}

	quality := strings.TrimPrefix(update.CallbackQuery.Data, "quality_")
	if !config.IsValidQuality(quality) {
		return
	}

	if err := h.store.SetQuality(ctx, chatID, quality); err != nil {
		slog.Error("set quality", "error", err, "chat_id", chatID)
		return
	}

	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      fmt.Sprintf("✅ Render quality set to *%s*.", quality),
		ParseMode: models.ParseModeMarkdownV1,
	})
}
