package middleware

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/animind/codemotion-bot/internal/domain"
	"github.com/animind/codemotion-bot/internal/session"
)

type ctxKey string

const SessionKey ctxKey = "session"

// GetSession extracts the chat's session from context. Nil means the
// chat is unauthenticated (the store has always been consulted by the
// time a handler runs, so nil never means "not yet checked").
func GetSession(ctx context.Context) *domain.Session {
	s, ok := ctx.Value(SessionKey).(*domain.Session)
	if !ok {
		return nil
	}
	return s
}

// SessionLoader returns middleware that resolves the chat's persisted
// session into context for every update.
func SessionLoader(store *session.Store) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			var chatID int64
			if update.Message != nil {
				chatID = update.Message.Chat.ID
			} else if update.CallbackQuery != nil && update.CallbackQuery.Message.Message != nil {
				chatID = update.CallbackQuery.Message.Message.Chat.ID
			}

			if chatID != 0 {
				sess, err := store.Load(ctx, chatID)
				if err != nil {
					slog.Error("load session", "error", err, "chat_id", chatID)
				} else if sess != nil {
					ctx = context.WithValue(ctx, SessionKey, sess)
				}
			}

			next(ctx, b, update)
		}
	}
}
