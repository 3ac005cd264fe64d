package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animind/codemotion-bot/internal/api"
	"github.com/animind/codemotion-bot/internal/auth"
	"github.com/animind/codemotion-bot/internal/domain"
	"github.com/animind/codemotion-bot/internal/session"
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

const authOKBody = `{
	"access_token": "tok-123",
	"refresh_token": "ref-123",
	"user": {"id": "u1", "email": "ada@example.com", "metadata": {"full_name": "Ada"}}
}`

func newController(backendURL string) (*auth.Controller, *session.Store) {
	store := session.NewStore(newMemKV())
	client := api.NewClient(backendURL, store)
	return auth.NewController(client, store), store
}

func TestSignupConfirmationPending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/signup", r.URL.Path)
		w.Write([]byte(`{"message": "Check your email to confirm your account"}`))
	}))
	defer srv.Close()

	ctrl, store := newController(srv.URL)
	outcome, sess, err := ctrl.Signup(context.Background(), 1, "ada@example.com", "pw", "Ada")
	require.NoError(t, err)
	assert.Equal(t, auth.SignupConfirmationPending, outcome)
	assert.Nil(t, sess)

	loaded, err := store.Load(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestLoginAdoptsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		w.Write([]byte(authOKBody))
	}))
	defer srv.Close()

	ctrl, store := newController(srv.URL)
	ctx := context.Background()

	sess, err := ctrl.Login(ctx, 1, "ada@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "Ada", sess.Name())
	assert.Equal(t, "tok-123", store.AccessToken(ctx, 1))

	require.NoError(t, ctrl.Logout(ctx, 1))
	assert.Empty(t, store.AccessToken(ctx, 1))
}

// googleState runs the /google flow against the controller and returns
// the state it bound to the chat.
func googleState(t *testing.T, ctrl *auth.Controller, chatID int64) string {
	t.Helper()
	authURL, err := ctrl.GoogleAuthURL(context.Background(), chatID)
	require.NoError(t, err)
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestCallbackExchangesCodeOnce(t *testing.T) {
	var exchanges atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/google":
			w.Write([]byte(`{"url": "https://provider.example.com/authorize?client_id=x"}`))
		case "/api/auth/callback":
			exchanges.Add(1)
			time.Sleep(100 * time.Millisecond)
			w.Write([]byte(authOKBody))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	ctrl, store := newController(srv.URL)
	state := googleState(t, ctrl, 77)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, results[i] = ctrl.HandleCallback(ctx, "code-1", state)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), exchanges.Load())

	var ok, dup int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrExchangeInProgress):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, dup)

	assert.Equal(t, "tok-123", store.AccessToken(ctx, 77))

	// The state is single-use: a replayed redirect cannot respend the code.
	_, _, err := ctrl.HandleCallback(ctx, "code-1", state)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, int32(1), exchanges.Load())
}

func TestCallbackRetriesAfterFailure(t *testing.T) {
	var exchanges atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/google":
			w.Write([]byte(`{"url": "https://provider.example.com/authorize"}`))
		case "/api/auth/callback":
			if exchanges.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				w.Write([]byte(`{"detail": "provider unavailable"}`))
				return
			}
			w.Write([]byte(authOKBody))
		}
	}))
	defer srv.Close()

	ctrl, _ := newController(srv.URL)
	state := googleState(t, ctrl, 5)
	ctx := context.Background()

	chatID, _, err := ctrl.HandleCallback(ctx, "code-2", state)
	require.Error(t, err)
	assert.Equal(t, int64(5), chatID)

	// The failed exchange released the latch, so a retry reaches the backend.
	chatID, sess, err := ctrl.HandleCallback(ctx, "code-2", state)
	require.NoError(t, err)
	assert.Equal(t, int64(5), chatID)
	assert.Equal(t, "Ada", sess.Name())
	assert.Equal(t, int32(2), exchanges.Load())
}

func TestCallbackRejectsBadInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/google" {
			w.Write([]byte(`{"url": "https://provider.example.com/authorize"}`))
			return
		}
		t.Errorf("backend should not be reached, got %s", r.URL.Path)
	}))
	defer srv.Close()

	ctrl, _ := newController(srv.URL)
	ctx := context.Background()

	_, _, err := ctrl.HandleCallback(ctx, "", "whatever")
	assert.ErrorIs(t, err, domain.ErrMissingCode)

	_, _, err = ctrl.HandleCallback(ctx, "code-3", "unknown-state")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}
