package logger

import "strings"

// Level names written to the "level" field.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

type enum map[string]struct{}

func newEnum(values ...string) enum {
	e := make(enum, len(values))
	for _, v := range values {
		e[v] = struct{}{}
	}
	return e
}

func (e enum) has(v string) bool {
	_, ok := e[v]
	return ok
}

var (
	statuses = newEnum("ok", "fail", "skip", "retry", "rate_limited", "cancelled", "expired")
	outcomes = newEnum("ok", "fail", "cancelled", "rate_limited", "correct", "wrong")
)

func normalizeLevel(level string) string {
	switch l := strings.ToUpper(strings.TrimSpace(level)); l {
	case "":
		return LevelInfo
	case "WARNING":
		return LevelWarn
	default:
		return l
	}
}

// normalizeStatus lowercases status and reports whether it is a known value.
// Unknown statuses are still written.
func normalizeStatus(status string) (string, bool) {
	status = strings.ToLower(strings.TrimSpace(status))
	return status, statuses.has(status)
}

// normalizeOutcome lowercases outcome; unknown outcomes are dropped by the caller.
func normalizeOutcome(outcome string) (string, bool) {
	outcome = strings.ToLower(strings.TrimSpace(outcome))
	return outcome, outcomes.has(outcome)
}

// defaultKeyOrder fixes the column order of kv and json lines. Keys not
// listed follow in alphabetical order.
var defaultKeyOrder = concatKeys(
	[]string{"ts", "level", "component", "event", "status"},
	[]string{"rid", "rid_full", "ts_unix_nano", "update_id", "user_id", "chat_id", "chat_type"},
	[]string{"session_id", "handler", "state", "next_state", "level_id", "topic", "index", "exercises", "cb_key"},
	[]string{"outcome", "duration_ms", "messages", "kb", "count", "total", "correct", "streak"},
	[]string{"payload", "lang", "username"},
	[]string{"mode", "listen", "public_url", "backend", "path", "db", "host", "port"},
	[]string{"err", "err_code", "cause", "attempts", "evicted", "sessions"},
)

func concatKeys(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
