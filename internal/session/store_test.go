package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animind/codemotion-bot/internal/config"
	"github.com/animind/codemotion-bot/internal/domain"
)

type memKV struct {
	mu   sync.Mutex
	data map[int64]map[string]string
}

func newMemKV() *memKV {
	return &memKV{data: make(map[int64]map[string]string)}
}

func (m *memKV) Get(_ context.Context, chatID int64, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[chatID][key]
	if !ok {
		return "", domain.ErrKeyNotFound
	}
	return v, nil
}

func (m *memKV) Set(_ context.Context, chatID int64, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[chatID] == nil {
		m.data[chatID] = make(map[string]string)
	}
	m.data[chatID][key] = value
	return nil
}

func (m *memKV) Delete(_ context.Context, chatID int64, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data[chatID], k)
	}
	return nil
}

func (m *memKV) has(chatID int64, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[chatID][key]
	return ok
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestLoadUnknownChat(t *testing.T) {
	store := NewStore(newMemKV())

	assert.False(t, store.Checked(42))

	sess, err := store.Load(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.True(t, store.Checked(42))
}

func TestSetAndLoadRoundTrip(t *testing.T) {
	kv := newMemKV()
	store := NewStore(kv)
	ctx := context.Background()

	token := signedToken(t, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(time.Hour).Unix()})
	err := store.Set(ctx, 7, &domain.Session{
		UserID:      "u1",
		Email:       "ada@example.com",
		DisplayName: "Ada Lovelace",
		AccessToken: token,
	})
	require.NoError(t, err)

	sess, err := store.Load(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "Ada Lovelace", sess.Name())
	assert.Equal(t, token, store.AccessToken(ctx, 7))

	// A fresh store over the same storage sees the persisted session.
	restarted := NewStore(kv)
	sess, err = restarted.Load(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "u1", sess.UserID)
	assert.Equal(t, "ada@example.com", sess.Email)
	assert.Equal(t, token, sess.AccessToken)
}

func TestLoadDiscardsCorruptedUserInfo(t *testing.T) {
	kv := newMemKV()
	ctx := context.Background()

	token := signedToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	require.NoError(t, kv.Set(ctx, 9, config.AccessTokenKey, token))
	require.NoError(t, kv.Set(ctx, 9, config.UserInfoKey, "{not json"))

	store := NewStore(kv)
	sess, err := store.Load(ctx, 9)
	require.NoError(t, err)
	assert.Nil(t, sess)

	assert.False(t, kv.has(9, config.AccessTokenKey))
	assert.False(t, kv.has(9, config.UserInfoKey))

	// A second load is served from memory and stays unauthenticated.
	sess, err = store.Load(ctx, 9)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestLoadDiscardsExpiredToken(t *testing.T) {
	kv := newMemKV()
	ctx := context.Background()

	token := signedToken(t, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})
	require.NoError(t, kv.Set(ctx, 11, config.AccessTokenKey, token))
	require.NoError(t, kv.Set(ctx, 11, config.UserInfoKey, `{"id":"u2","email":"x@example.com","metadata":{}}`))

	store := NewStore(kv)
	sess, err := store.Load(ctx, 11)
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.False(t, kv.has(11, config.AccessTokenKey))
}

func TestLoadKeepsTokenWithoutExpClaim(t *testing.T) {
	kv := newMemKV()
	ctx := context.Background()

	token := signedToken(t, jwt.MapClaims{"sub": "u3"})
	require.NoError(t, kv.Set(ctx, 13, config.AccessTokenKey, token))
	require.NoError(t, kv.Set(ctx, 13, config.UserInfoKey, `{"id":"u3","email":"y@example.com","metadata":{"full_name":"Emmy"}}`))

	store := NewStore(kv)
	sess, err := store.Load(ctx, 13)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "Emmy", sess.DisplayName)
}

func TestClear(t *testing.T) {
	kv := newMemKV()
	store := NewStore(kv)
	ctx := context.Background()

	token := signedToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	require.NoError(t, store.Set(ctx, 5, &domain.Session{UserID: "u5", AccessToken: token}))
	require.NoError(t, store.Clear(ctx, 5))

	sess, err := store.Load(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.Empty(t, store.AccessToken(ctx, 5))
	assert.False(t, kv.has(5, config.AccessTokenKey))
	assert.False(t, kv.has(5, config.UserInfoKey))
}

func TestQualityPreference(t *testing.T) {
	kv := newMemKV()
	store := NewStore(kv)
	ctx := context.Background()

	assert.Equal(t, config.DefaultQuality, store.Quality(ctx, 3))

	require.NoError(t, store.SetQuality(ctx, 3, "high"))
	assert.Equal(t, "high", store.Quality(ctx, 3))

	// Garbage in storage falls back to the default.
	require.NoError(t, kv.Set(ctx, 3, config.QualityKey, "ultra"))
	assert.Equal(t, config.DefaultQuality, store.Quality(ctx, 3))
}
