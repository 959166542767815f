// Package events publishes license lifecycle events to the configured
// sinks: the audit log, the Discord webhook and the websocket hub.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Kind identifies a lifecycle event.
type Kind string

const (
	KindIssued       Kind = "issued"
	KindActivated    Kind = "activated"
	KindRenewed      Kind = "renewed"
	KindRevoked      Kind = "revoked"
	KindExpired      Kind = "expired"
	KindExpiringSoon Kind = "expiringSoon"
)

// Event is one lifecycle transition, captured after the state change has
// been persisted.
type Event struct {
	Kind            Kind       `json:"kind"`
	LicenseID       int64      `json:"licenseId"`
	Key             string     `json:"key"`
	DiscordUsername string     `json:"discordUsername,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	At              time.Time  `json:"at"`
}

// Sink consumes dispatched events. Sinks must tolerate being called from
// a single dispatcher goroutine; slow sinks delay later events but never
// block publishers.
type Sink interface {
	Consume(ctx context.Context, ev Event)
}

// Bus fans events out to sinks through a bounded queue. Publish never
// blocks: when the queue is full the event is dropped and logged, so a
// slow webhook cannot stall the request path.
type Bus struct {
	queue  chan Event
	sinks  []Sink
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	done    chan struct{}

	dropped int64
}

// NewBus creates a bus with the given queue capacity.
func NewBus(queueSize int, logger *slog.Logger, sinks ...Sink) *Bus {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Bus{
		queue:  make(chan Event, queueSize),
		sinks:  sinks,
		logger: logger.With(slog.String("component", "events.bus")),
		done:   make(chan struct{}),
	}
}

// Start launches the dispatcher goroutine. Safe to call once.
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true
	go b.dispatch()
}

// Stop drains the queue and waits for the dispatcher to exit.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	close(b.queue)
	<-b.done
}

// Publish enqueues an event without blocking. Overflow drops the event.
func (b *Bus) Publish(ev Event) {
	select {
	case b.queue <- ev:
	default:
		b.mu.Lock()
		b.dropped++
		dropped := b.dropped
		b.mu.Unlock()
		b.logger.Warn("event queue full, dropping event",
			slog.String("kind", string(ev.Kind)),
			slog.String("key", ev.Key),
			slog.Int64("dropped_total", dropped))
	}
}

// Dropped returns how many events overflowed the queue.
func (b *Bus) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for ev := range b.queue {
		ctx := context.Background()
		for _, sink := range b.sinks {
			sink.Consume(ctx, ev)
		}
	}
}
