package logger

import (
	"strconv"
	"strings"
	"sync"
)

// ratio passes num out of every den events. A zero ratio passes everything.
type ratio struct {
	num int
	den int
}

func (r ratio) passAll() bool {
	return r.num <= 0 || r.den <= 0
}

// eventSampler thins high-volume debug events. Each event name keeps its own
// counter so a noisy event cannot starve a quiet one.
type eventSampler struct {
	mu       sync.Mutex
	base     ratio
	perEvent map[string]ratio
	counters map[string]int
}

func newEventSampler(base ratio) *eventSampler {
	s := &eventSampler{}
	s.Set(base, nil)
	return s
}

// Set replaces the sampling ratios and resets all counters.
func (s *eventSampler) Set(base ratio, perEvent map[string]ratio) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base = clampRatio(base)
	s.perEvent = make(map[string]ratio, len(perEvent))
	for ev, r := range perEvent {
		s.perEvent[ev] = clampRatio(r)
	}
	s.counters = make(map[string]int)
}

func clampRatio(r ratio) ratio {
	if r.passAll() {
		return ratio{}
	}
	if r.num > r.den {
		r.num = r.den
	}
	return r
}

// Allow reports whether the next occurrence of event should be logged.
func (s *eventSampler) Allow(event string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.perEvent[event]
	if !ok {
		r = s.base
	}
	if r.passAll() {
		return true
	}
	n := s.counters[event] + 1
	if n > r.den {
		n = 1
	}
	s.counters[event] = n
	return n <= r.num
}

// parseSampleSpec reads "1/50" or "50" optionally followed by per-event
// overrides: "1/50, update.received=1/200, answer.checked=1".
func parseSampleSpec(spec string) (ratio, map[string]ratio) {
	var (
		base     ratio
		perEvent map[string]ratio
	)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if ev, val, ok := strings.Cut(part, "="); ok {
			ev = strings.TrimSpace(ev)
			if ev == "" {
				continue
			}
			if perEvent == nil {
				perEvent = make(map[string]ratio)
			}
			perEvent[ev] = parseRatio(val)
			continue
		}
		base = parseRatio(part)
	}
	return base, perEvent
}

func parseRatio(spec string) ratio {
	spec = strings.TrimSpace(spec)
	if num, den, ok := strings.Cut(spec, "/"); ok {
		n, err1 := strconv.Atoi(strings.TrimSpace(num))
		d, err2 := strconv.Atoi(strings.TrimSpace(den))
		if err1 == nil && err2 == nil && n > 0 && d > 0 {
			return ratio{num: n, den: d}
		}
		return ratio{}
	}
	if v, err := strconv.Atoi(spec); err == nil && v > 0 {
		return ratio{num: 1, den: v}
	}
	return ratio{}
}
