// Package callbacks decodes inline button payloads.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Sep separates the unique key from the payload in callback data.
const Sep = "|"

// MaxDataLen is the Bot API limit for callback data in bytes.
const MaxDataLen = 64

// Parse returns the unique key and payload of cb. Telebot routes callbacks
// without a dedicated endpoint to OnCallback with the raw "\f<unique>|<payload>"
// data left intact, so both shapes are handled.
func Parse(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	key, payload, _ := strings.Cut(raw, Sep)
	return strings.TrimSpace(key), payload
}

// Key returns the unique key of the current callback.
func Key(c tele.Context) string {
	key, _ := Parse(c.Callback())
	return key
}

// Payload returns the payload of the current callback.
func Payload(c tele.Context) string {
	_, payload := Parse(c.Callback())
	return payload
}

// Fits reports whether unique and payload encode within MaxDataLen.
func Fits(unique, payload string) bool {
	return len("\f")+len(unique)+len(Sep)+len(payload) <= MaxDataLen
}
