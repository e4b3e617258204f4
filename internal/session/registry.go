package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/internal/progress"
)

// Config tunes idle eviction.
type Config struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

const (
	defaultIdleTimeout   = 30 * time.Minute
	defaultSweepInterval = time.Minute
)

// entry guards one session. An evicted entry is dead: a dispatcher that
// finds it evicted after taking the lock starts over with a fresh lookup.
type entry struct {
	mu      sync.Mutex
	session *Session
	evicted bool
}

// Registry owns every live session. Events for one user run one at a time;
// distinct users never block each other beyond the map lookup.
type Registry struct {
	machine *Machine
	cfg     Config
	now     func() time.Time

	mu      sync.Mutex
	entries map[progress.UserID]*entry
}

// NewRegistry builds an empty registry.
func NewRegistry(machine *Machine, cfg Config) *Registry {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	return &Registry{
		machine: machine,
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[progress.UserID]*entry),
	}
}

// Dispatch routes ev to the session of userID, creating it on first use.
func (r *Registry) Dispatch(ctx context.Context, userID progress.UserID, ev Event) ([]Instruction, error) {
	for {
		e := r.lookup(userID)
		e.mu.Lock()
		if e.evicted {
			e.mu.Unlock()
			continue
		}
		s := e.session
		prev := s.State
		sctx := logger.WithSessionID(ctx, s.ID)
		out, err := r.machine.Handle(sctx, s, ev)
		s.LastActivity = r.now()
		if s.State != prev {
			logger.Debug(logger.WithSessionID(ctx, s.ID), "session", "state.changed",
				slog.String("state", string(prev)),
				slog.String("next_state", string(s.State)),
				slog.String("kind", string(ev.Kind)),
			)
		}
		e.mu.Unlock()
		return out, err
	}
}

func (r *Registry) lookup(userID progress.UserID) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[userID]
	if !ok {
		e = &entry{session: newSession(userID, r.now())}
		r.entries[userID] = e
	}
	return e
}

// Snapshot returns a copy of the session of userID, if one is live.
func (r *Registry) Snapshot(userID progress.UserID) (Session, bool) {
	r.mu.Lock()
	e, ok := r.entries[userID]
	r.mu.Unlock()
	if !ok {
		return Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return Session{}, false
	}
	return *e.session, true
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep evicts sessions idle for longer than the idle timeout and returns
// how many were removed. Each eviction holds that user's lock.
func (r *Registry) Sweep(ctx context.Context, now time.Time) int {
	r.mu.Lock()
	candidates := make(map[progress.UserID]*entry, len(r.entries))
	for id, e := range r.entries {
		candidates[id] = e
	}
	r.mu.Unlock()

	evicted := 0
	for id, e := range candidates {
		e.mu.Lock()
		s := e.session
		if !e.evicted && now.Sub(s.LastActivity) > r.cfg.IdleTimeout {
			e.evicted = true
			r.mu.Lock()
			if r.entries[id] == e {
				delete(r.entries, id)
			}
			r.mu.Unlock()
			evicted++
			logger.Debug(logger.WithSessionID(logger.WithUserID(ctx, id), s.ID), "session", "session.evicted",
				slog.String("state", string(s.State)),
				slog.Duration("idle", now.Sub(s.LastActivity)),
			)
		}
		e.mu.Unlock()
	}
	if evicted > 0 {
		logger.Info(ctx, "session", "sweep.done",
			slog.Int("evicted", evicted),
			slog.Int("sessions", r.Len()),
		)
	}
	return evicted
}

// Run sweeps on a ticker until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	logger.Info(ctx, "session", "sweeper.start",
		slog.Duration("interval", r.cfg.SweepInterval),
		slog.Duration("idle", r.cfg.IdleTimeout),
	)
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "session", "sweeper.stop", slog.Int("sessions", r.Len()))
			return nil
		case now := <-ticker.C:
			r.Sweep(ctx, now)
		}
	}
}
