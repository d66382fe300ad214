package events

import (
	"context"
	"log/slog"
	"sync"

	"rps_wager/internal/domain"
)

// Publisher receives domain events after the transition that produced them
// has been committed. Implementations must not block on slow consumers.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev domain.Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev domain.Event) error { return f(ctx, ev) }

// Nop drops every event.
var Nop Publisher = PublisherFunc(func(context.Context, domain.Event) error { return nil })

// Fanout forwards each event to all sinks. A failing sink is logged and does
// not stop the others.
type Fanout struct {
	sinks []Publisher
	log   *slog.Logger
}

func NewFanout(log *slog.Logger, sinks ...Publisher) *Fanout {
	return &Fanout{sinks: sinks, log: log}
}

func (f *Fanout) Publish(ctx context.Context, ev domain.Event) error {
	for _, s := range f.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			f.log.Warn("event sink failed", "type", ev.Type, "match_id", ev.MatchID, "error", err)
		}
	}
	return nil
}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType filters recorded events, optionally by match ("" for all matches).
func (r *Recorder) OfType(t domain.EventType, matchID string) []domain.Event {
	var out []domain.Event
	for _, ev := range r.Events() {
		if ev.Type == t && (matchID == "" || ev.MatchID == matchID) {
			out = append(out, ev)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
