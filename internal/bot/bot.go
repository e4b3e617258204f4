// Package bot binds the quiz sessions to the Telegram transport: commands and
// callbacks become session events and instructions become messages.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/quizbot/core/logger"
	tg "github.com/m3rciful/quizbot/core/telegram"
	"github.com/m3rciful/quizbot/core/telegram/callbacks"
	"github.com/m3rciful/quizbot/core/telegram/format"
	tghelpers "github.com/m3rciful/quizbot/core/telegram/helpers"
	"github.com/m3rciful/quizbot/core/telegram/router"
	"github.com/m3rciful/quizbot/internal/progress"
	"github.com/m3rciful/quizbot/internal/session"

	tele "gopkg.in/telebot.v4"
)

const (
	msgUnknownCommand = "Unknown command. Send /start to see what I can do."
	msgRateLimited    = "Too fast, please wait a moment."
	msgNotAllowed     = "This command is for the bot admin only."
)

// Dispatcher applies one event to the session of a user.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID progress.UserID, ev session.Event) ([]session.Instruction, error)
	Len() int
}

// Counter reports how many users have stats.
type Counter interface {
	Len() int
}

// Bot routes Telegram updates into quiz sessions.
type Bot struct {
	sessions Dispatcher
	users    Counter
	adminID  int64
}

// New builds the adapter. users may be nil when the admin report is not needed.
func New(sessions Dispatcher, users Counter, adminID int64) *Bot {
	return &Bot{sessions: sessions, users: users, adminID: adminID}
}

// Register declares every command and callback on reg.
func (b *Bot) Register(reg *tg.Registry) error {
	cmds := []struct {
		name string
		cmd  tg.Command
	}{
		{"/start", tg.Command{Handler: b.on(session.EventStart), Description: "Greeting and help", Aliases: []string{"/help"}}},
		{"/quiz", tg.Command{Handler: b.on(session.EventQuizStart), Description: "Start a quiz"}},
		{"/cancel", tg.Command{Handler: b.on(session.EventCancel), Description: "Stop the current quiz"}},
		{"/stats", tg.Command{Handler: b.on(session.EventStatsQuery), Description: "Show your progress"}},
		{"/achievements", tg.Command{Handler: b.on(session.EventAchievementsQuery), Description: "Show your badges"}},
		{"/sessions", tg.Command{Handler: b.report, Description: "Live sessions and known users", AdminOnly: true, Hidden: true}},
	}
	var errs []error
	for _, c := range cmds {
		if err := reg.RegisterCommand(c.name, c.cmd); err != nil {
			errs = append(errs, err)
		}
	}
	if err := reg.RegisterCallback(session.ActionLevel, b.onCallback(session.EventLevelChosen)); err != nil {
		errs = append(errs, err)
	}
	if err := reg.RegisterCallback(session.ActionTopic, b.onCallback(session.EventTopicChosen)); err != nil {
		errs = append(errs, err)
	}
	reg.SetTextFallback(b.onAnswer)
	return errors.Join(errs...)
}

// Routes builds the Telegram handlers for everything registered on reg.
func (b *Bot) Routes(reg *tg.Registry) []tg.Route {
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID:       b.adminID,
		OnAdminReject: func(c tele.Context) error { return tghelpers.SendText(c, msgNotAllowed) },
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(reg, router.TextOptions{
		UnknownCommand: func(c tele.Context) error {
			return tghelpers.SendMDV2(c, format.EscapeV2(msgUnknownCommand))
		},
	})...)
	return routes
}

// OnRateLimited answers a throttled update.
func OnRateLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: msgRateLimited})
	}
	return tghelpers.SendText(c, msgRateLimited)
}

func (b *Bot) on(kind session.EventKind) tele.HandlerFunc {
	return func(c tele.Context) error {
		return b.dispatch(c, session.Event{Kind: kind})
	}
}

func (b *Bot) onCallback(kind session.EventKind) tele.HandlerFunc {
	return func(c tele.Context) error {
		return b.dispatch(c, session.Event{Kind: kind, Payload: callbacks.Payload(c)})
	}
}

func (b *Bot) onAnswer(c tele.Context) error {
	return b.dispatch(c, session.Event{Kind: session.EventAnswer, Payload: c.Text()})
}

func (b *Bot) dispatch(c tele.Context, ev session.Event) error {
	ctx := tghelpers.BuildContext(c)
	userID := tghelpers.SenderID(c)
	if userID == 0 {
		return nil
	}
	out, err := b.sessions.Dispatch(ctx, userID, ev)
	switch {
	case errors.Is(err, session.ErrSessionExpired):
		logger.Debug(ctx, "tg", "session.expired", slog.String("kind", string(ev.Kind)))
	case err != nil:
		return fmt.Errorf("bot: dispatch %s: %w", ev.Kind, err)
	}
	return tghelpers.SendAll(c, Render(ctx, out))
}

func (b *Bot) report(c tele.Context) error {
	users := 0
	if b.users != nil {
		users = b.users.Len()
	}
	return tghelpers.SendText(c, fmt.Sprintf("Live sessions: %d\nKnown users: %d", b.sessions.Len(), users))
}
