package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-telegram/bot"

	"github.com/animind/codemotion-bot/internal/api"
	"github.com/animind/codemotion-bot/internal/auth"
	"github.com/animind/codemotion-bot/internal/domain"
)

// Server hosts the OAuth callback route. The provider redirects the
// user's browser here with a one-time code; the exchange result is
// reported both to the browser and back into the Telegram chat.
type Server struct {
	auth *auth.Controller
	bot  *bot.Bot
	srv  *http.Server
}

func NewServer(authCtrl *auth.Controller, b *bot.Bot, port int) *Server {
	s := &Server{auth: authCtrl, bot: b}

	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Get("/auth/callback", s.handleCallback)

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	slog.Info("callback server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("callback server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errParam := q.Get("error"); errParam != "" {
		slog.Warn("oauth provider error", "error", errParam, "description", q.Get("error_description"))
		s.renderError(w, http.StatusBadRequest, "Authentication was cancelled or rejected by the provider.")
		return
	}

	code := q.Get("code")
	state := q.Get("state")

	chatID, sess, err := s.auth.HandleCallback(r.Context(), code, state)
	switch {
	case err == nil:
		s.notifyChat(r.Context(), chatID, fmt.Sprintf("✅ Signed in with Google as %s.", sess.Name()))
		s.renderSuccess(w, sess.Name())
	case errors.Is(err, domain.ErrExchangeInProgress):
		// A duplicate redirect for a code already being exchanged;
		// nothing to do.
		s.renderSuccess(w, "")
	case errors.Is(err, domain.ErrMissingCode):
		s.renderError(w, http.StatusBadRequest, "No authentication code found. Start again from Telegram with /google.")
	case errors.Is(err, domain.ErrInvalidState):
		s.renderError(w, http.StatusBadRequest, "This sign-in link is invalid or has expired. Start again from Telegram with /google.")
	default:
		slog.Error("oauth exchange failed", "error", err, "chat_id", chatID)
		detail := "Failed to complete Google sign-in. You can retry from Telegram with /google."
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			detail = apiErr.Detail
		}
		if chatID != 0 {
			s.notifyChat(r.Context(), chatID, "❌ Google sign-in failed: "+detail)
		}
		s.renderError(w, http.StatusBadRequest, detail)
	}
}

func (s *Server) notifyChat(ctx context.Context, chatID int64, text string) {
	if s.bot == nil {
		return
	}
	if _, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}); err != nil {
		slog.Error("notify chat", "error", err, "chat_id", chatID)
	}
}

func (s *Server) renderSuccess(w http.ResponseWriter, name string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	greeting := "You're signed in."
	if name != "" {
		greeting = "You're signed in as " + name + "."
	}
	fmt.Fprintf(w, successPage, greeting)
}

func (s *Server) renderError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, errorPage, message)
}

const successPage = `<!DOCTYPE html>
<html><head><title>Animind</title></head>
<body style="font-family:sans-serif;text-align:center;padding-top:4rem">
<h2>✅ %s</h2>
<p>You can close this tab and return to Telegram.</p>
</body></html>`

const errorPage = `<!DOCTYPE html>
<html><head><title>Animind</title></head>
<body style="font-family:sans-serif;text-align:center;padding-top:4rem">
<h2>Authentication Error</h2>
<p>%s</p>
</body></html>`
