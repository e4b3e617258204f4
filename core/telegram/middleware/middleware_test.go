package middleware

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tghelpers "github.com/m3rciful/quizbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

func messageFrom(userID int64, text string) tele.Context {
	return tele.NewContext(nil, tele.Update{
		ID: 1,
		Message: &tele.Message{
			Sender: &tele.User{ID: userID},
			Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
			Text:   text,
		},
	})
}

func callbackFrom(userID int64, data string) tele.Context {
	return tele.NewContext(nil, tele.Update{
		ID: 2,
		Callback: &tele.Callback{
			Sender: &tele.User{ID: userID},
			Data:   data,
		},
	})
}

func TestUpdateKind(t *testing.T) {
	assert.Equal(t, "message", UpdateKind(messageFrom(1, "hi")))
	assert.Equal(t, "callback", UpdateKind(callbackFrom(1, "\flevel|A1")))
	assert.Equal(t, "other", UpdateKind(tele.NewContext(nil, tele.Update{})))
}

func TestRateLimitBlocksBurstsPerUser(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limited := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Second,
		Now:       func() time.Time { return now },
		OnLimited: func(tele.Context) error { limited++; return nil },
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	require.NoError(t, h(messageFrom(1, "a")))
	require.NoError(t, h(messageFrom(1, "b")))
	require.NoError(t, h(messageFrom(2, "c")))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, limited)

	now = now.Add(2 * time.Second)
	require.NoError(t, h(messageFrom(1, "d")))
	assert.Equal(t, 3, calls)
}

func TestRateLimitExcludesKinds(t *testing.T) {
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval: time.Hour,
		Exclude:  map[string]struct{}{"callback": {}},
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })
	for i := 0; i < 3; i++ {
		require.NoError(t, h(callbackFrom(1, "\ftopic|verbs")))
	}
	assert.Equal(t, 3, calls)
}

func TestAdminOnly(t *testing.T) {
	rejected := 0
	mw := AdminOnlyMiddleware(AdminOptions{
		AdminID:  7,
		OnReject: func(tele.Context) error { rejected++; return nil },
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	require.NoError(t, h(messageFrom(7, "/sessions")))
	require.NoError(t, h(messageFrom(8, "/sessions")))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, rejected)

	closed := AdminOnlyMiddleware(AdminOptions{})(func(tele.Context) error { calls++; return nil })
	require.NoError(t, closed(messageFrom(7, "/sessions")))
	assert.Equal(t, 1, calls, "zero admin id rejects everyone")
}

func TestRecoverTurnsPanicIntoError(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	err := h(messageFrom(1, "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	plain := errors.New("plain")
	h = RecoverMiddleware(func(tele.Context) error { return plain })
	assert.ErrorIs(t, h(messageFrom(1, "x")), plain)
}

func TestLoggerMiddlewareStoresContextOnce(t *testing.T) {
	c := messageFrom(5, "hello")
	seen := 0
	h := LoggerMiddleware(LoggerMiddleware(func(c tele.Context) error {
		_, ok := tghelpers.ContextFrom(c)
		assert.True(t, ok)
		seen++
		return nil
	}))
	require.NoError(t, h(c))
	assert.Equal(t, 1, seen)
	assert.NotEmpty(t, c.Get("rid"))
}

func TestMessageMetricsCountsQueuedMessages(t *testing.T) {
	c := messageFrom(5, "hello")
	c.Set("outbound_messages", 9)
	var msgs int
	var kb bool
	h := MessageMetricsMiddleware(func(c tele.Context) error {
		msgs, kb = GetCounters(c)
		return nil
	})
	require.NoError(t, h(c))
	assert.Zero(t, msgs)
	assert.False(t, kb)
}
