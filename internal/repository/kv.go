package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/animind/codemotion-bot/internal/domain"
)

// ChatKV is per-chat durable key-value storage, the bot's equivalent of
// the browser's localStorage. Values are plain text; callers own the
// serialization.
type ChatKV struct {
	db *pgxpool.Pool
}

func NewChatKV(db *pgxpool.Pool) *ChatKV {
	return &ChatKV{db: db}
}

func (s *ChatKV) Get(ctx context.Context, chatID int64, key string) (string, error) {
	var value string
	err := s.db.QueryRow(ctx,
		`SELECT value FROM chat_kv WHERE chat_id = $1 AND key = $2`,
		chatID, key,
	).Scan(&value)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", domain.ErrKeyNotFound
		}
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *ChatKV) Set(ctx context.Context, chatID int64, key, value string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO chat_kv (chat_id, key, value, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (chat_id, key)
		 DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		chatID, key, value,
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *ChatKV) Delete(ctx context.Context, chatID int64, keys ...string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM chat_kv WHERE chat_id = $1 AND key = ANY($2)`,
		chatID, keys,
	)
	if err != nil {
		return fmt.Errorf("delete keys: %w", err)
	}
	return nil
}
