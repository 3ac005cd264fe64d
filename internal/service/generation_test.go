package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animind/codemotion-bot/internal/api"
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

func newService(backendURL string) *GenerationService {
	store := session.NewStore(newMemKV())
	return NewGenerationService(api.NewClient(backendURL, store), store)
}

func TestSubmitScratchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate-and-render", r.URL.Path)
		w.Write([]byte(`{"success": true, "supabase_url": "https://cdn.example.com/v.mp4", "sanitized_code": "class GeneratedScene: pass"}`))
	}))
	defer srv.Close()

	svc := newService(srv.URL)
	res, err := svc.Submit(context.Background(), 1, "  rotating cube  ")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/v.mp4", res.VideoURL)
	assert.Equal(t, "class GeneratedScene: pass", res.Assistant.SanitizedCode)

	msgs := svc.Messages(1)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, "rotating cube", msgs[0].Content)
	assert.Equal(t, domain.MessageConfirmed, msgs[0].State)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)

	assert.Equal(t, "https://cdn.example.com/v.mp4", svc.VideoURL(1))
	assert.False(t, svc.InFlight(1))
}

func TestSubmitEmptyPrompt(t *testing.T) {
	svc := newService("http://unreachable.invalid")
	_, err := svc.Submit(context.Background(), 1, "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyPrompt)
	assert.Empty(t, svc.Messages(1))
}

func TestSubmitRejectsConcurrentRequest(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(`{"success": true, "supabase_url": "https://cdn.example.com/v.mp4"}`))
	}))
	defer srv.Close()

	svc := newService(srv.URL)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := svc.Submit(ctx, 1, "first prompt")
		done <- err
	}()

	require.Eventually(t, func() bool { return svc.InFlight(1) }, time.Second, 5*time.Millisecond)

	_, err := svc.Submit(ctx, 1, "second prompt")
	assert.ErrorIs(t, err, domain.ErrRequestInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, svc.InFlight(1))

	// Only the first prompt made it into the conversation.
	msgs := svc.Messages(1)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first prompt", msgs[0].Content)
}

func TestSubmitTimeoutDropsLateCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Keep answering even after the client gave up.
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`{"success": true, "supabase_url": "https://cdn.example.com/late.mp4"}`))
	}))
	defer srv.Close()

	svc := newService(srv.URL)
	svc.timeout = 50 * time.Millisecond

	_, err := svc.Submit(context.Background(), 1, "slow prompt")
	assert.ErrorIs(t, err, domain.ErrGenerationTimeout)
	assert.False(t, svc.InFlight(1))

	msgs := svc.Messages(1)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.MessageFailed, msgs[0].State)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "Request timed out")
	assert.Empty(t, svc.VideoURL(1))

	// Even if the backend eventually answers, the resolved submission
	// swallows the completion: no new messages, no video.
	time.Sleep(400 * time.Millisecond)
	assert.Len(t, svc.Messages(1), 2)
	assert.Empty(t, svc.VideoURL(1))
}

func TestSubmitGenerationFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "error": "render crashed"}`))
	}))
	defer srv.Close()

	svc := newService(srv.URL)
	_, err := svc.Submit(context.Background(), 1, "impossible scene")
	require.ErrorIs(t, err, domain.ErrGenerationFailed)

	msgs := svc.Messages(1)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.MessageFailed, msgs[0].State)
	assert.Equal(t, "I failed to generate the video. render crashed", msgs[1].Content)
	assert.False(t, svc.InFlight(1))
}

func TestSubmitBackendErrorDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"detail": "GPU workers are busy"}`))
	}))
	defer srv.Close()

	svc := newService(srv.URL)
	_, err := svc.Submit(context.Background(), 1, "anything")
	require.Error(t, err)

	msgs := svc.Messages(1)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Error: GPU workers are busy", msgs[1].Content)
}

func TestProjectModeRoutesToProjectEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chats/p1":
			w.Write([]byte(`{
				"id": "p1", "title": "Waves", "updated_at": "2026-08-30T12:00:00Z",
				"messages": [
					{"id": "m1", "role": "assistant", "content": "older", "video_url": "https://cdn.example.com/old.mp4"},
					{"id": "m2", "role": "assistant", "content": "newer", "video_url": "https://cdn.example.com/new.mp4"}
				]
			}`))
		case "/api/chats/p1/message":
			w.Write([]byte(`{
				"message": {"id": "m3", "role": "assistant", "content": "added a cosine"},
				"video_url": "https://cdn.example.com/m3.mp4"
			}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	svc := newService(srv.URL)
	ctx := context.Background()

	detail, err := svc.OpenProject(ctx, 1, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Waves", detail.Project.Title)
	assert.Equal(t, "https://cdn.example.com/new.mp4", svc.VideoURL(1))

	project, open := svc.CurrentProject(1)
	assert.True(t, open)
	assert.Equal(t, "p1", project.ID)

	res, err := svc.Submit(ctx, 1, "add a cosine")
	require.NoError(t, err)
	assert.Equal(t, "added a cosine", res.Assistant.Content)
	assert.Equal(t, "https://cdn.example.com/m3.mp4", svc.VideoURL(1))

	// 2 loaded + user + assistant
	assert.Len(t, svc.Messages(1), 4)
}

func TestResetReturnsToScratch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"id": "p1", "title": "Waves", "updated_at": "2026-08-30T12:00:00Z",
			"messages": [{"id": "m1", "role": "assistant", "content": "hi", "video_url": "https://cdn.example.com/v.mp4"}]
		}`))
	}))
	defer srv.Close()

	svc := newService(srv.URL)
	_, err := svc.OpenProject(context.Background(), 1, "p1")
	require.NoError(t, err)

	svc.Reset(1)
	_, open := svc.CurrentProject(1)
	assert.False(t, open)
	assert.Empty(t, svc.Messages(1))
	assert.Empty(t, svc.VideoURL(1))
}

func TestFailureText(t *testing.T) {
	assert.Contains(t, FailureText(domain.ErrGenerationTimeout), "Request timed out")
	assert.Equal(t, "Error: nope", FailureText(&api.Error{Status: 400, Detail: "nope"}))
	assert.Equal(t, "Network error: could not reach the generation server.", FailureText(context.Canceled))
}
