package authority

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"prudad/internal/events"
)

const expiringSoonDedupe = 24 * time.Hour

// Sweeper is the background expiry task. Lazy expiry on read is the
// source of truth; the sweep only persists it and emits the one-shot
// expired and expiringSoon notifications.
type Sweeper struct {
	authority *Authority
	interval  time.Duration
	window    time.Duration
	logger    *slog.Logger

	group singleflight.Group

	mu       sync.Mutex
	lastSoon map[int64]time.Time

	done chan struct{}
}

// NewSweeper builds a sweeper with the configured tick interval and
// expiringSoon look-ahead window.
func NewSweeper(a *Authority, interval, window time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if window <= 0 {
		window = 72 * time.Hour
	}
	return &Sweeper{
		authority: a,
		interval:  interval,
		window:    window,
		logger:    logger.With(slog.String("component", "authority.sweep")),
		lastSoon:  make(map[int64]time.Time),
		done:      make(chan struct{}),
	}
}

// Run ticks until ctx is cancelled. One sweep runs immediately so a
// restart does not wait a full interval to catch up.
func (s *Sweeper) Run(ctx context.Context) {
	defer close(s.done)

	s.Sweep(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweep stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Wait blocks until Run has exited.
func (s *Sweeper) Wait() { <-s.done }

// Sweep persists due expiries and emits expiringSoon events. Concurrent
// calls collapse into one pass via singleflight.
func (s *Sweeper) Sweep(ctx context.Context) {
	_, _, _ = s.group.Do("sweep", func() (any, error) {
		s.sweepOnce(ctx)
		return nil, nil
	})
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	a := s.authority
	now := a.clock.Now().UTC()

	expired, err := a.licenses.ExpireDue(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "persist due expiries", slog.String("error", err.Error()))
	} else {
		// The status flip is the once-guard: ExpireDue returns each
		// record exactly once.
		for i := range expired {
			a.publish(events.KindExpired, &expired[i], now)
		}
		if len(expired) > 0 {
			s.logger.InfoContext(ctx, "licenses expired", slog.Int("count", len(expired)))
		}
	}

	soon, err := a.licenses.ListExpiringSoon(ctx, now, s.window)
	if err != nil {
		s.logger.ErrorContext(ctx, "list expiring licenses", slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range soon {
		lic := &soon[i]
		if last, ok := s.lastSoon[lic.ID]; ok && now.Sub(last) < expiringSoonDedupe {
			continue
		}
		s.lastSoon[lic.ID] = now
		a.publish(events.KindExpiringSoon, lic, now)
	}
	// Entries for licenses no longer in the window are stale; drop them
	// so the map stays proportional to the live set.
	inWindow := make(map[int64]bool, len(soon))
	for i := range soon {
		inWindow[soon[i].ID] = true
	}
	for id := range s.lastSoon {
		if !inWindow[id] {
			delete(s.lastSoon, id)
		}
	}
}
