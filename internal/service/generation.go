package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/animind/codemotion-bot/internal/api"
	"github.com/animind/codemotion-bot/internal/config"
	"github.com/animind/codemotion-bot/internal/domain"
	"github.com/animind/codemotion-bot/internal/session"
)

// GenerationService turns a user prompt into a rendered artifact while
// keeping each chat's message list and video preview consistent under
// latency and failure. One submission in flight per chat; the user's
// optimistic message is inserted immediately and reconciled when the
// backend answers, or marked failed when it doesn't.
type GenerationService struct {
	api     *api.Client
	store   *session.Store
	timeout time.Duration

	mu sync.Mutex
	ws map[int64]*workspace
}

// workspace is a chat's local view: the open project (empty id means
// scratch mode on the landing endpoint), its cached messages, and the
// single current video URL.
type workspace struct {
	project  domain.Project
	messages []domain.Message
	videoURL string
	active   *submission
}

// submission fences one in-flight request: once resolved, any late
// completion from the same request is dropped.
type submission struct {
	userMsgID string
	resolved  bool
}

type outcome struct {
	assistant domain.Message
	videoURL  string
	err       error
}

// SubmitResult is the terminal state of a successful submission.
type SubmitResult struct {
	Assistant domain.Message
	VideoURL  string
}

func NewGenerationService(apiClient *api.Client, store *session.Store) *GenerationService {
	return &GenerationService{
		api:     apiClient,
		store:   store,
		timeout: config.GenerateTimeout,
		ws:      make(map[int64]*workspace),
	}
}

// Submit runs one generation request for the chat. It blocks until the
// request reaches a terminal state: success, failure, or timeout. The
// in-flight lock is released in every case.
func (s *GenerationService) Submit(ctx context.Context, chatID int64, prompt string) (*SubmitResult, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, domain.ErrEmptyPrompt
	}

	s.mu.Lock()
	w := s.workspaceLocked(chatID)
	if w.active != nil {
		s.mu.Unlock()
		return nil, domain.ErrRequestInFlight
	}
	sub := &submission{userMsgID: uuid.NewString()}
	w.active = sub
	w.messages = append(w.messages, domain.Message{
		ID:        sub.userMsgID,
		Role:      domain.RoleUser,
		Content:   prompt,
		State:     domain.MessagePending,
		CreatedAt: time.Now(),
	})
	projectID := w.project.ID
	s.mu.Unlock()

	quality := s.store.Quality(ctx, chatID)

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resCh := make(chan outcome, 1)
	go func() {
		resCh <- s.call(reqCtx, chatID, projectID, prompt, quality)
	}()

	select {
	case out := <-resCh:
		return s.finish(chatID, sub, out)
	case <-reqCtx.Done():
		// Cancel the network operation, then drain its eventual
		// completion; finish drops it because sub is already resolved.
		cancel()
		go func() {
			out := <-resCh
			s.finish(chatID, sub, out)
		}()
		return s.finish(chatID, sub, outcome{err: domain.ErrGenerationTimeout})
	}
}

func (s *GenerationService) call(ctx context.Context, chatID int64, projectID, prompt, quality string) outcome {
	if projectID != "" {
		res, err := s.api.SendProjectMessage(ctx, chatID, projectID, prompt)
		if err != nil {
			return outcome{err: err}
		}
		return outcome{assistant: res.Message, videoURL: res.VideoURL}
	}

	res, err := s.api.GenerateAndRender(ctx, chatID, domain.GenerationRequest{
		Prompt:     prompt,
		SceneClass: config.DefaultSceneClass,
		Quality:    quality,
		Filename:   config.DefaultScriptName,
		MaxRetries: config.DefaultMaxRetries,
	})
	if err != nil {
		return outcome{err: err}
	}
	if !res.Success || res.SupabaseURL == "" {
		reason := res.Error
		if reason == "" {
			reason = "no video produced"
		}
		return outcome{err: fmt.Errorf("%w: %s", domain.ErrGenerationFailed, reason)}
	}

	return outcome{
		assistant: domain.Message{
			ID:            uuid.NewString(),
			Role:          domain.RoleAssistant,
			Content:       "I've generated your animation! The video is ready to preview.",
			VideoURL:      res.SupabaseURL,
			SanitizedCode: res.SanitizedCode,
			State:         domain.MessageConfirmed,
			CreatedAt:     time.Now(),
		},
		videoURL: res.SupabaseURL,
	}
}

// finish resolves a submission exactly once. The first caller wins;
// a late completion from a cancelled request is ignored entirely.
func (s *GenerationService) finish(chatID int64, sub *submission, out outcome) (*SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.resolved {
		slog.Debug("dropping late generation completion", "chat_id", chatID)
		return nil, domain.ErrGenerationTimeout
	}
	sub.resolved = true

	w := s.workspaceLocked(chatID)
	if w.active == sub {
		w.active = nil
	}

	if out.err != nil {
		err := out.err
		if errors.Is(err, context.DeadlineExceeded) {
			err = domain.ErrGenerationTimeout
		}
		s.setStateLocked(w, sub.userMsgID, domain.MessageFailed)
		w.messages = append(w.messages, domain.Message{
			ID:        uuid.NewString(),
			Role:      domain.RoleAssistant,
			Content:   FailureText(err),
			State:     domain.MessageFailed,
			CreatedAt: time.Now(),
		})
		return nil, err
	}

	s.setStateLocked(w, sub.userMsgID, domain.MessageConfirmed)
	w.messages = append(w.messages, out.assistant)
	if out.videoURL != "" {
		w.videoURL = out.videoURL
	}
	return &SubmitResult{Assistant: out.assistant, VideoURL: w.videoURL}, nil
}

// FailureText maps a terminal error to the assistant-authored message
// shown inline in the conversation.
func FailureText(err error) string {
	var apiErr *api.Error
	switch {
	case errors.Is(err, domain.ErrGenerationTimeout):
		return "Request timed out. The generation is taking longer than expected. Please try again."
	case errors.Is(err, domain.ErrGenerationFailed):
		return "I failed to generate the video. " + strings.TrimPrefix(err.Error(), domain.ErrGenerationFailed.Error()+": ")
	case errors.As(err, &apiErr):
		return "Error: " + apiErr.Detail
	default:
		return "Network error: could not reach the generation server."
	}
}

// OpenProject loads a backend project into the chat's workspace and
// replays the most recent rendered video.
func (s *GenerationService) OpenProject(ctx context.Context, chatID int64, projectID string) (*api.ProjectDetail, error) {
	detail, err := s.api.GetProject(ctx, chatID, projectID)
	if err != nil {
		return nil, err
	}

	videoURL := ""
	for i := len(detail.Messages) - 1; i >= 0; i-- {
		if detail.Messages[i].VideoURL != "" {
			videoURL = detail.Messages[i].VideoURL
			break
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.workspaceLocked(chatID)
	if w.active != nil {
		return nil, domain.ErrRequestInFlight
	}
	w.project = detail.Project
	w.messages = append([]domain.Message(nil), detail.Messages...)
	w.videoURL = videoURL
	return detail, nil
}

// Reset returns the chat to scratch mode with an empty message list.
func (s *GenerationService) Reset(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.workspaceLocked(chatID)
	if w.active != nil {
		return
	}
	s.ws[chatID] = &workspace{}
}

// CurrentProject returns the open project, if any.
func (s *GenerationService) CurrentProject(chatID int64) (domain.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.workspaceLocked(chatID)
	return w.project, w.project.ID != ""
}

// Messages returns a copy of the chat's cached message list.
func (s *GenerationService) Messages(chatID int64) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.workspaceLocked(chatID)
	return append([]domain.Message(nil), w.messages...)
}

// VideoURL returns the chat's current artifact URL, "" when none.
func (s *GenerationService) VideoURL(chatID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workspaceLocked(chatID).videoURL
}

// InFlight reports whether the chat has a pending submission.
func (s *GenerationService) InFlight(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workspaceLocked(chatID).active != nil
}

func (s *GenerationService) setStateLocked(w *workspace, msgID string, state domain.MessageState) {
	for i := range w.messages {
		if w.messages[i].ID == msgID {
			w.messages[i].State = state
			return
		}
	}
}

func (s *GenerationService) workspaceLocked(chatID int64) *workspace {
	w, ok := s.ws[chatID]
	if !ok {
		w = &workspace{}
		s.ws[chatID] = w
	}
	return w
}
