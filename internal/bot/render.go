package bot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/core/telegram/callbacks"
	"github.com/m3rciful/quizbot/core/telegram/format"
	tghelpers "github.com/m3rciful/quizbot/core/telegram/helpers"
	"github.com/m3rciful/quizbot/core/telegram/keyboard"
	"github.com/m3rciful/quizbot/internal/session"

	tele "gopkg.in/telebot.v4"
)

// Render turns session instructions into Telegram messages, keeping order.
// Text is sent as MarkdownV2 with the title in bold on its own line.
func Render(ctx context.Context, in []session.Instruction) []tghelpers.Message {
	out := make([]tghelpers.Message, 0, len(in))
	for _, ins := range in {
		out = append(out, tghelpers.Message{
			Text: renderText(ins),
			Opts: &tele.SendOptions{
				ParseMode:   tele.ModeMarkdownV2,
				ReplyMarkup: renderMarkup(ctx, ins),
			},
		})
	}
	return out
}

func renderText(ins session.Instruction) string {
	parts := make([]string, 0, 2)
	if title := format.BoldV2(ins.Title); title != "" {
		parts = append(parts, title)
	}
	if strings.TrimSpace(ins.Text) != "" {
		parts = append(parts, format.EscapeV2(ins.Text))
	}
	return strings.Join(parts, "\n")
}

// renderMarkup picks the keyboard of one message. Options win over removal
// since a message carries a single markup.
func renderMarkup(ctx context.Context, ins session.Instruction) *tele.ReplyMarkup {
	switch {
	case ins.Keyboard == session.KeyboardInline && len(ins.Options) > 0:
		btns := make([]keyboard.InlineBtn, 0, len(ins.Options))
		for _, o := range ins.Options {
			if !callbacks.Fits(o.Action, o.Payload) {
				logger.Warn(ctx, "tg", "button.dropped",
					slog.String("cb_key", o.Action),
					slog.String("payload", logger.SanitizeLimit(o.Payload, 64)),
					slog.String("reason", "data_too_long"),
				)
				continue
			}
			btns = append(btns, keyboard.InlineBtn{Text: o.Label, Unique: o.Action, Data: o.Payload})
		}
		return keyboard.InlineButtons(btns)
	case ins.Keyboard == session.KeyboardReply && len(ins.Options) > 0:
		labels := make([]string, 0, len(ins.Options))
		for _, o := range ins.Options {
			labels = append(labels, o.Label)
		}
		return keyboard.ReplyColumn(labels...)
	case ins.RemoveKeyboard:
		return keyboard.RemoveKeyboard()
	}
	return nil
}
