package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/animind/codemotion-bot/internal/api"
	"github.com/animind/codemotion-bot/internal/config"
	"github.com/animind/codemotion-bot/internal/domain"
	"github.com/animind/codemotion-bot/internal/session"
)

// SignupOutcome distinguishes auto-login from the email-confirmation
// path, where the backend creates the account without a token pair.
type SignupOutcome int

const (
	SignupAuthenticated SignupOutcome = iota
	SignupConfirmationPending
)

// Controller drives every auth transition and is the only writer of the
// session store. OAuth state is bound to a chat so the callback server
// knows who just came back from the provider; the exchange latch keeps
// a duplicated callback from spending the same code twice.
type Controller struct {
	api   *api.Client
	store *session.Store

	mu         sync.Mutex
	exchanging map[string]bool
	states     map[string]pendingState
}

type pendingState struct {
	chatID    int64
	createdAt time.Time
}

func NewController(apiClient *api.Client, store *session.Store) *Controller {
	return &Controller{
		api:        apiClient,
		store:      store,
		exchanging: make(map[string]bool),
		states:     make(map[string]pendingState),
	}
}

func (c *Controller) Signup(ctx context.Context, chatID int64, email, password, fullName string) (SignupOutcome, *domain.Session, error) {
	resp, err := c.api.Signup(ctx, chatID, email, password, fullName)
	if err != nil {
		return 0, nil, err
	}

	if resp.AccessToken == "" {
		return SignupConfirmationPending, nil, nil
	}

	sess := resp.Session()
	if err := c.store.Set(ctx, chatID, sess); err != nil {
		return 0, nil, fmt.Errorf("store session: %w", err)
	}
	return SignupAuthenticated, sess, nil
}

func (c *Controller) Login(ctx context.Context, chatID int64, email, password string) (*domain.Session, error) {
	resp, err := c.api.Login(ctx, chatID, email, password)
	if err != nil {
		return nil, err
	}

	sess := resp.Session()
	if err := c.store.Set(ctx, chatID, sess); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return sess, nil
}

func (c *Controller) Logout(ctx context.Context, chatID int64) error {
	return c.store.Clear(ctx, chatID)
}

// GoogleAuthURL fetches the provider authorization URL and binds a
// single-use state to the chat, so the eventual callback can be routed
// back to it.
func (c *Controller) GoogleAuthURL(ctx context.Context, chatID int64) (string, error) {
	authURL, err := c.api.GoogleAuthURL(ctx)
	if err != nil {
		return "", err
	}

	state, err := newState()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}

	c.mu.Lock()
	c.pruneStatesLocked()
	c.states[state] = pendingState{chatID: chatID, createdAt: time.Now()}
	c.mu.Unlock()

	u, err := url.Parse(authURL)
	if err != nil {
		return "", fmt.Errorf("parse auth url: %w", err)
	}
	q := u.Query()
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// HandleCallback exchanges a one-time code for a session, exactly once.
// A concurrent duplicate invocation with the same code is a no-op; on
// exchange failure the latch is released so a user-initiated retry can
// go through.
func (c *Controller) HandleCallback(ctx context.Context, code, state string) (int64, *domain.Session, error) {
	if code == "" {
		return 0, nil, domain.ErrMissingCode
	}

	c.mu.Lock()
	ps, ok := c.states[state]
	if !ok || time.Since(ps.createdAt) > config.OAuthStateTTL {
		c.mu.Unlock()
		return 0, nil, domain.ErrInvalidState
	}
	if c.exchanging[code] {
		c.mu.Unlock()
		return ps.chatID, nil, domain.ErrExchangeInProgress
	}
	c.exchanging[code] = true
	c.mu.Unlock()

	resp, err := c.api.ExchangeCode(ctx, code)
	if err != nil {
		c.mu.Lock()
		delete(c.exchanging, code)
		c.mu.Unlock()
		return ps.chatID, nil, err
	}

	sess := resp.Session()
	if err := c.store.Set(ctx, ps.chatID, sess); err != nil {
		c.mu.Lock()
		delete(c.exchanging, code)
		c.mu.Unlock()
		return ps.chatID, nil, fmt.Errorf("store session: %w", err)
	}

	// The latch entry stays: the code is spent and must never be
	// exchanged again.
	c.mu.Lock()
	delete(c.states, state)
	c.mu.Unlock()
	return ps.chatID, sess, nil
}

func (c *Controller) pruneStatesLocked() {
	for s, ps := range c.states {
		if time.Since(ps.createdAt) > config.OAuthStateTTL {
			delete(c.states, s)
		}
	}
}

func newState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
