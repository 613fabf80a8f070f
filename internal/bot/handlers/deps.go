package handlers

import (
	"log/slog"

	"github.com/edgard/sheldonbot/internal/config"
	"github.com/edgard/sheldonbot/internal/database"
	"github.com/edgard/sheldonbot/internal/gemini"
)

// HandlerDeps provides dependencies for Telegram message and command handlers.
type HandlerDeps struct {
	Logger       *slog.Logger
	Config       *config.Config
	Store        database.Store
	GeminiClient gemini.Client
}
