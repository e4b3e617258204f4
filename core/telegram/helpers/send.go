package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

func currentDispatcher() *sender.Dispatcher {
	return globalDispatcher.Load()
}

// Message is one outbound message.
type Message struct {
	Text string
	Opts *tele.SendOptions
}

func sendAsync(c tele.Context, action, endpoint string, run func() error) error {
	disp := currentDispatcher()
	if disp == nil {
		return run()
	}

	ctx := BuildContext(c)
	if err := disp.Enqueue(ctx, ChatID(c), action, endpoint, run); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			logger.Warn(ctx, "tg.sender", "queue.fallback",
				slog.String("action", action),
				slog.String("endpoint", endpoint),
				logger.Err(err),
			)
			return run()
		}
		return err
	}
	return nil
}

const (
	outboundCountKey = "outbound_messages"
	outboundKBKey    = "outbound_kb"
)

// ResetOutbound clears the per-update outbound counters.
func ResetOutbound(c tele.Context) {
	c.Set(outboundCountKey, 0)
	c.Set(outboundKBKey, false)
}

// Outbound reports how many messages were queued for the current update and
// whether any carried a keyboard.
func Outbound(c tele.Context) (int, bool) {
	n, _ := c.Get(outboundCountKey).(int)
	kb, _ := c.Get(outboundKBKey).(bool)
	return n, kb
}

func noteOutbound(c tele.Context, m Message) {
	n, kb := Outbound(c)
	c.Set(outboundCountKey, n+1)
	if !kb && m.Opts != nil && m.Opts.ReplyMarkup != nil {
		c.Set(outboundKBKey, true)
	}
}

// Send queues one message to the current chat.
func Send(c tele.Context, m Message) error {
	noteOutbound(c, m)
	return sendAsync(c, "send.text", "sendMessage", func() error {
		if m.Opts != nil {
			return c.Send(m.Text, m.Opts)
		}
		return c.Send(m.Text)
	})
}

// SendAll queues msgs to the current chat. They are delivered in order.
func SendAll(c tele.Context, msgs []Message) error {
	var errs []error
	for _, m := range msgs {
		if err := Send(c, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendText sends raw text (no parse mode) to the current recipient.
func SendText(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	opts := &tele.SendOptions{}
	if len(markup) > 0 {
		opts.ReplyMarkup = markup[0]
	}
	return Send(c, Message{Text: text, Opts: opts})
}

// SendMDV2 sends a message with MarkdownV2 parse mode and optional reply markup.
func SendMDV2(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdownV2}
	if len(markup) > 0 {
		opts.ReplyMarkup = markup[0]
	}
	return Send(c, Message{Text: text, Opts: opts})
}
