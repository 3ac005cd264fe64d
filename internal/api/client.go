package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/animind/codemotion-bot/internal/domain"
)

// TokenProvider yields the current bearer token for a chat. The client
// asks on every request rather than caching, so token rotation in the
// session store takes effect immediately.
type TokenProvider interface {
	AccessToken(ctx context.Context, chatID int64) string
}

// Client is the single outbound HTTP surface to the Animind backend.
// It injects Authorization headers and normalizes errors; retry policy
// belongs to callers.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenProvider
}

func NewClient(baseURL string, tokens TokenProvider) *Client {
	return &Client{
		baseURL: baseURL,
		// No transport-level timeout: each call site bounds its own
		// context, and generation legitimately runs for minutes.
		httpClient: &http.Client{},
		tokens:     tokens,
	}
}

func (c *Client) do(ctx context.Context, chatID int64, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.tokens.AccessToken(ctx, chatID); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

func (c *Client) Signup(ctx context.Context, chatID int64, email, password, fullName string) (*AuthResponse, error) {
	body := map[string]string{
		"email":     email,
		"password":  password,
		"full_name": fullName,
	}
	var resp AuthResponse
	if err := c.do(ctx, chatID, http.MethodPost, "/api/auth/signup", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Login(ctx context.Context, chatID int64, email, password string) (*AuthResponse, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}
	var resp AuthResponse
	if err := c.do(ctx, chatID, http.MethodPost, "/api/auth/login", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GoogleAuthURL fetches the provider authorization URL the user must
// visit to start the OAuth flow.
func (c *Client) GoogleAuthURL(ctx context.Context) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, 0, http.MethodGet, "/api/auth/google", nil, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// ExchangeCode trades a one-time OAuth code for a token pair.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, 0, http.MethodPost, "/api/auth/callback", map[string]string{"code": code}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListProjects(ctx context.Context, chatID int64) ([]domain.Project, error) {
	var rows []chatOut
	if err := c.do(ctx, chatID, http.MethodGet, "/api/chats", nil, &rows); err != nil {
		return nil, err
	}
	projects := make([]domain.Project, len(rows))
	for i, r := range rows {
		projects[i] = domain.Project{
			ID:        r.ID,
			Title:     r.Title,
			UpdatedAt: parseTimestamp(r.UpdatedAt),
		}
	}
	return projects, nil
}

func (c *Client) CreateProject(ctx context.Context, chatID int64, title string) (*domain.Project, error) {
	var row chatOut
	if err := c.do(ctx, chatID, http.MethodPost, "/api/chats", map[string]string{"title": title}, &row); err != nil {
		return nil, err
	}
	return &domain.Project{
		ID:        row.ID,
		Title:     row.Title,
		UpdatedAt: parseTimestamp(row.UpdatedAt),
	}, nil
}

func (c *Client) GetProject(ctx context.Context, chatID int64, projectID string) (*ProjectDetail, error) {
	var row struct {
		chatOut
		Messages []messageOut `json:"messages"`
	}
	if err := c.do(ctx, chatID, http.MethodGet, "/api/chats/"+projectID, nil, &row); err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, domain.ErrProjectNotFound
		}
		return nil, err
	}

	detail := &ProjectDetail{
		Project: domain.Project{
			ID:        row.ID,
			Title:     row.Title,
			UpdatedAt: parseTimestamp(row.UpdatedAt),
		},
		Messages: make([]domain.Message, len(row.Messages)),
	}
	for i, m := range row.Messages {
		detail.Messages[i] = m.toDomain()
	}
	return detail, nil
}

// SendProjectMessage submits a prompt inside a project; the backend
// persists both sides of the exchange and renders the video itself.
func (c *Client) SendProjectMessage(ctx context.Context, chatID int64, projectID, prompt string) (*SendMessageResult, error) {
	var resp struct {
		Message  messageOut `json:"message"`
		VideoURL string     `json:"video_url"`
	}
	err := c.do(ctx, chatID, http.MethodPost, "/api/chats/"+projectID+"/message", map[string]string{"prompt": prompt}, &resp)
	if err != nil {
		return nil, err
	}
	return &SendMessageResult{
		Message:  resp.Message.toDomain(),
		VideoURL: resp.VideoURL,
	}, nil
}

// GenerateAndRender runs the combined generate-and-render pipeline for
// a standalone prompt outside any project.
func (c *Client) GenerateAndRender(ctx context.Context, chatID int64, req domain.GenerationRequest) (*GenerateResult, error) {
	body := map[string]any{
		"prompt":      req.Prompt,
		"scene_class": req.SceneClass,
		"quality":     req.Quality,
		"filename":    req.Filename,
		"max_retries": req.MaxRetries,
	}
	var resp GenerateResult
	if err := c.do(ctx, chatID, http.MethodPost, "/api/generate-and-render", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
