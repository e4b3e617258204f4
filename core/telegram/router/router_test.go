package router

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tg "github.com/m3rciful/quizbot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

func textUpdate(text string) tele.Context {
	return tele.NewContext(nil, tele.Update{
		ID: 10,
		Message: &tele.Message{
			Sender: &tele.User{ID: 3},
			Chat:   &tele.Chat{ID: 3, Type: tele.ChatPrivate},
			Text:   text,
		},
	})
}

func textHandler(t *testing.T, routes []tg.Route) tele.HandlerFunc {
	t.Helper()
	for _, r := range routes {
		if r.Endpoint == tele.OnText {
			return r.Handler
		}
	}
	t.Fatal("no text route")
	return nil
}

func TestTextRoutesDispatch(t *testing.T) {
	reg := tg.NewRegistry()
	var got []string
	require.NoError(t, reg.RegisterCommand("/quiz", tg.Command{
		Description: "Start a quiz",
		Handler:     func(tele.Context) error { got = append(got, "quiz"); return nil },
	}))
	reg.SetTextFallback(func(c tele.Context) error { got = append(got, "answer:"+c.Text()); return nil })

	h := textHandler(t, TextRoutes(reg, TextOptions{
		UnknownCommand: func(tele.Context) error { got = append(got, "unknown"); return nil },
	}))

	require.NoError(t, h(textUpdate("/Quiz@quiz_bot now")))
	require.NoError(t, h(textUpdate("An")))
	require.NoError(t, h(textUpdate("/nope")))
	require.NoError(t, h(textUpdate("quiz")))

	assert.Equal(t, []string{"quiz", "answer:An", "unknown", "answer:quiz"}, got)
}

func TestTextRoutesWithoutFallbackSkip(t *testing.T) {
	h := textHandler(t, TextRoutes(tg.NewRegistry(), TextOptions{}))
	assert.NoError(t, h(textUpdate("hello")))
}

func TestTextRoutesRecoverFromPanic(t *testing.T) {
	reg := tg.NewRegistry()
	reg.SetTextFallback(func(tele.Context) error { panic("bad handler") })
	h := textHandler(t, TextRoutes(reg, TextOptions{}))
	assert.Error(t, h(textUpdate("x")))
}

func TestCommandRoutesIncludeAliasesAndAdminGate(t *testing.T) {
	reg := tg.NewRegistry()
	calls := 0
	require.NoError(t, reg.RegisterCommand("/start", tg.Command{
		Description: "Greeting",
		Aliases:     []string{"help"},
		Handler:     func(tele.Context) error { calls++; return nil },
	}))
	require.NoError(t, reg.RegisterCommand("/sessions", tg.Command{
		Description: "Admin report",
		AdminOnly:   true,
		Handler:     func(tele.Context) error { calls++; return nil },
	}))

	routes := map[any]tele.HandlerFunc{}
	for _, r := range CommandRoutes(reg, CommandRouteOptions{AdminID: 99}) {
		routes[r.Endpoint] = r.Handler
	}
	require.Contains(t, routes, "/start")
	require.Contains(t, routes, "/help")
	require.Contains(t, routes, "/sessions")

	require.NoError(t, routes["/help"](textUpdate("/help")))
	require.NoError(t, routes["/sessions"](textUpdate("/sessions")))
	assert.Equal(t, 1, calls, "non-admin must not reach /sessions")
}

type codedErr struct{}

func (codedErr) Error() string { return "coded" }
func (codedErr) Code() string { return "store down" }

type plainErr struct{}

func (*plainErr) Error() string { return "plain" }

func TestDeriveErrorCode(t *testing.T) {
	assert.Equal(t, "", deriveErrorCode(nil))
	assert.Equal(t, "STORE_DOWN", deriveErrorCode(codedErr{}))
	assert.Equal(t, "PLAINERR", deriveErrorCode(&plainErr{}))
	assert.Equal(t, "STORE_DOWN", deriveErrorCode(errors.Join(codedErr{})))
}

func TestNormalizeHandlerName(t *testing.T) {
	assert.Equal(t, "quiz", normalizeHandlerName("/Quiz"))
	assert.Equal(t, "unknown", normalizeHandlerName("  "))
	assert.Equal(t, "level_chosen", normalizeHandlerName("level chosen"))
}
