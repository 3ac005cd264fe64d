package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/animind/codemotion-bot/internal/config"
	"github.com/animind/codemotion-bot/internal/domain"
)

// KV is the durable per-chat key-value storage the store persists to.
type KV interface {
	Get(ctx context.Context, chatID int64, key string) (string, error)
	Set(ctx context.Context, chatID int64, key, value string) error
	Delete(ctx context.Context, chatID int64, keys ...string) error
}

// Store is the single source of truth for "is this chat authenticated,
// and with what token". Sessions live in memory and are persisted under
// the fixed access_token / user_info keys so they survive restarts.
// Only the auth controller writes; everyone else reads.
type Store struct {
	kv KV

	mu       sync.RWMutex
	sessions map[int64]*domain.Session
	checked  map[int64]bool
}

// userRecord is the persisted shape of the backend's user object.
type userRecord struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Metadata struct {
		FullName  string `json:"full_name,omitempty"`
		AvatarURL string `json:"avatar_url,omitempty"`
	} `json:"metadata"`
}

func NewStore(kv KV) *Store {
	return &Store{
		kv:       kv,
		sessions: make(map[int64]*domain.Session),
		checked:  make(map[int64]bool),
	}
}

// Load returns the chat's session, reading persisted state on first
// call. A nil session with a nil error means "checked, unauthenticated".
// Corrupted or expired persisted entries are discarded rather than
// surfaced: the chat just has to log in again.
func (s *Store) Load(ctx context.Context, chatID int64) (*domain.Session, error) {
	s.mu.RLock()
	if s.checked[chatID] {
		sess := s.sessions[chatID]
		s.mu.RUnlock()
		return sess, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checked[chatID] {
		return s.sessions[chatID], nil
	}

	sess, err := s.loadPersisted(ctx, chatID)
	if err != nil {
		return nil, err
	}

	s.sessions[chatID] = sess
	s.checked[chatID] = true
	return sess, nil
}

func (s *Store) loadPersisted(ctx context.Context, chatID int64) (*domain.Session, error) {
	token, err := s.kv.Get(ctx, chatID, config.AccessTokenKey)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load access token: %w", err)
	}

	userJSON, err := s.kv.Get(ctx, chatID, config.UserInfoKey)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return nil, s.discard(ctx, chatID)
		}
		return nil, fmt.Errorf("load user info: %w", err)
	}

	var rec userRecord
	if err := json.Unmarshal([]byte(userJSON), &rec); err != nil {
		slog.Warn("discarding corrupted session", "chat_id", chatID, "error", err)
		return nil, s.discard(ctx, chatID)
	}

	if tokenExpired(token) {
		slog.Info("discarding expired session", "chat_id", chatID)
		return nil, s.discard(ctx, chatID)
	}

	return &domain.Session{
		UserID:      rec.ID,
		Email:       rec.Email,
		DisplayName: rec.Metadata.FullName,
		AvatarURL:   rec.Metadata.AvatarURL,
		AccessToken: token,
	}, nil
}

func (s *Store) discard(ctx context.Context, chatID int64) error {
	if err := s.kv.Delete(ctx, chatID, config.AccessTokenKey, config.UserInfoKey); err != nil {
		return fmt.Errorf("discard session: %w", err)
	}
	return nil
}

// Set replaces the chat's session in memory and persists it.
func (s *Store) Set(ctx context.Context, chatID int64, sess *domain.Session) error {
	rec := userRecord{ID: sess.UserID, Email: sess.Email}
	rec.Metadata.FullName = sess.DisplayName
	rec.Metadata.AvatarURL = sess.AvatarURL

	userJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal user record: %w", err)
	}

	if err := s.kv.Set(ctx, chatID, config.AccessTokenKey, sess.AccessToken); err != nil {
		return err
	}
	if err := s.kv.Set(ctx, chatID, config.UserInfoKey, string(userJSON)); err != nil {
		return err
	}

	s.mu.Lock()
	s.sessions[chatID] = sess
	s.checked[chatID] = true
	s.mu.Unlock()
	return nil
}

// Clear removes the persisted entries and resets the chat to
// unauthenticated.
func (s *Store) Clear(ctx context.Context, chatID int64) error {
	if err := s.discard(ctx, chatID); err != nil {
		return err
	}

	s.mu.Lock()
	s.sessions[chatID] = nil
	s.checked[chatID] = true
	s.mu.Unlock()
	return nil
}

// Checked reports whether the chat's persisted state has been read yet,
// distinguishing "not yet checked" from "checked and unauthenticated".
func (s *Store) Checked(chatID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checked[chatID]
}

// AccessToken returns the chat's current bearer token, or "" when the
// chat is unauthenticated. Fetched fresh per request by the API client
// so a rotated token is picked up immediately.
func (s *Store) AccessToken(ctx context.Context, chatID int64) string {
	sess, err := s.Load(ctx, chatID)
	if err != nil || sess == nil {
		return ""
	}
	return sess.AccessToken
}

// Quality returns the chat's persisted render-quality preference.
func (s *Store) Quality(ctx context.Context, chatID int64) string {
	q, err := s.kv.Get(ctx, chatID, config.QualityKey)
	if err != nil || !config.IsValidQuality(q) {
		return config.DefaultQuality
	}
	return q
}

func (s *Store) SetQuality(ctx context.Context, chatID int64, quality string) error {
	return s.kv.Set(ctx, chatID, config.QualityKey, quality)
}

// tokenExpired reports whether the access token fails to decode or
// carries an exp claim in the past. The signature is not verified; the
// backend does that on every request anyway.
func tokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
