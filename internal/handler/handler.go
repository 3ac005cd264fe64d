package handler

import (
	"github.com/go-telegram/bot"

	"github.com/animind/codemotion-bot/internal/api"
	"github.com/animind/codemotion-bot/internal/auth"
	"github.com/animind/codemotion-bot/internal/config"
	"github.com/animind/codemotion-bot/internal/service"
	"github.com/animind/codemotion-bot/internal/session"
)

// Handler holds all dependencies needed by command and callback handlers.
type Handler struct {
	bot        *bot.Bot
	cfg        *config.Config
	store      *session.Store
	apiClient  *api.Client
	auth       *auth.Controller
	generation *service.GenerationService
}

// Deps contains all dependencies required to construct a Handler.
type Deps struct {
	Bot        *bot.Bot
	Cfg        *config.Config
	Store      *session.Store
	APIClient  *api.Client
	Auth       *auth.Controller
	Generation *service.GenerationService
}

// New creates a new Handler from the provided dependencies.
func New(deps Deps) *Handler {
	return &Handler{
		bot:        deps.Bot,
		cfg:        deps.Cfg,
		store:      deps.Store,
		apiClient:  deps.APIClient,
		auth:       deps.Auth,
		generation: deps.Generation,
	}
}
