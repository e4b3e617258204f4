// Package app assembles the quiz bot from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/m3rciful/quizbot/core/bootstrap"
	corecmd "github.com/m3rciful/quizbot/core/cmd"
	coreconfig "github.com/m3rciful/quizbot/core/config"
	coretelegram "github.com/m3rciful/quizbot/core/telegram"
	"github.com/m3rciful/quizbot/internal/bot"
	"github.com/m3rciful/quizbot/internal/content"
	"github.com/m3rciful/quizbot/internal/session"
)

// App holds the wired quiz bot.
type App struct {
	cfg      *coreconfig.Config
	infra    *bootstrap.Result
	catalog  *content.Catalog
	sessions *session.Registry
	bot      *bot.Bot
}

var _ corecmd.App = (*App)(nil)

// New wires content, sessions and the Telegram adapter over bootstrapped infrastructure.
func New(cfg *coreconfig.Config, infra *bootstrap.Result) *App {
	catalog := content.NewDir(cfg.Quiz.ContentDir, cfg.Quiz.Levels)
	machine := session.NewMachine(catalog, infra.Tracker)
	sessions := session.NewRegistry(machine, session.Config{
		IdleTimeout:   cfg.Quiz.IdleTimeout(),
		SweepInterval: cfg.Quiz.SweepInterval(),
	})
	return &App{
		cfg:      cfg,
		infra:    infra,
		catalog:  catalog,
		sessions: sessions,
		bot:      bot.New(sessions, infra.Tracker, cfg.Telegram.AdminID),
	}
}

// Bootstrap initialises infrastructure and builds the app.
func Bootstrap(ctx context.Context, cfg *coreconfig.Config) (corecmd.App, error) {
	infra, err := bootstrap.Run(ctx, bootstrap.Options{Config: cfg})
	if err != nil {
		return nil, err
	}
	return New(cfg, infra), nil
}

// Sessions exposes the session registry.
func (a *App) Sessions() *session.Registry {
	return a.sessions
}

// TelegramRunOptions describes how the Telegram runtime should serve the bot.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	if err := a.bot.Register(reg); err != nil {
		return coretelegram.RunOptions{}, fmt.Errorf("app: register handlers: %w", err)
	}
	return coretelegram.RunOptions{
		Config:      a.cfg,
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg, bot.OnRateLimited),
		Routes:      a.bot.Routes,
	}, nil
}

// Background sweeps idle sessions until ctx is done.
func (a *App) Background(ctx context.Context) error {
	return a.sessions.Run(ctx)
}

// Close releases the progress store.
func (a *App) Close() error {
	return a.infra.Close()
}
