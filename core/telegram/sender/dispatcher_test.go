package sender

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestJobsForOneKeyRunInOrder(t *testing.T) {
	d := NewDispatcher(Options{Workers: 4, QueueSize: 512})

	var mu sync.Mutex
	got := map[int64][]int{}
	for i := 0; i < 100; i++ {
		for _, chat := range []int64{1, 2, -1003} {
			i, chat := i, chat
			require.NoError(t, d.Enqueue(context.Background(), chat, "send.text", "sendMessage", func() error {
				mu.Lock()
				defer mu.Unlock()
				got[chat] = append(got[chat], i)
				return nil
			}))
		}
	}
	d.Close()

	for _, chat := range []int64{1, 2, -1003} {
		require.Len(t, got[chat], 100)
		for i, v := range got[chat] {
			assert.Equal(t, i, v, "chat %d", chat)
		}
	}
	assert.Equal(t, uint64(300), d.SentCount())
}

func TestEnqueueAfterClose(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1})
	d.Close()
	d.Close()
	err := d.Enqueue(context.Background(), 1, "a", "", func() error { return nil })
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestEnqueueWhenFull(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, d.Enqueue(context.Background(), 1, "block", "", func() error {
		close(started)
		<-release
		return nil
	}))
	<-started
	require.NoError(t, d.Enqueue(context.Background(), 1, "queued", "", func() error { return nil }))
	err := d.Enqueue(context.Background(), 1, "overflow", "", func() error { return nil })
	assert.ErrorIs(t, err, ErrQueueFull)
	close(release)
	d.Close()
}

func TestTransientErrorsAreRetried(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}
	require.NoError(t, d.Enqueue(context.Background(), 5, "send.text", "sendMessage", func() error {
		if calls.Add(1) < 3 {
			return dial
		}
		return nil
	}))
	d.Close()
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, uint64(0), d.ErrorCount())
}

func TestPermanentErrorsFailFast(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), 5, "send.text", "sendMessage", func() error {
		calls.Add(1)
		return &tele.Error{Code: 400, Description: "Bad Request: message is too long"}
	}))
	d.Close()
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, uint64(1), d.ErrorCount())
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, "timeout", classifyError(context.DeadlineExceeded))
	assert.Equal(t, "dial", classifyError(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.Equal(t, "http_4xx", classifyError(&tele.Error{Code: 400}))
	assert.Equal(t, "blocked", classifyError(&tele.Error{Code: 403}))
	assert.Equal(t, "flood", classifyError(tele.FloodError{RetryAfter: 3}))
	assert.Equal(t, "http_5xx", classifyError(errors.New("telegram: internal error (502)")))
	assert.Equal(t, "unknown", classifyError(errors.New("boom")))
}

func TestSanitizeErrorMessage(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123456:AAH-secret_Token/sendMessage": timeout`)
	assert.Equal(t, `Post "https://api.telegram.org/bot<redacted>/sendMessage": timeout`, sanitizeErrorMessage(err))
}
