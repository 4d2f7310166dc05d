package session

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/placement"
)

// StalenessWindow is how old an inbound event may be, relative to receipt,
// before it is dropped regardless of the watermark.
const StalenessWindow = 1000 * time.Millisecond

// Synchronizer bridges local placement events to the shared store and filters
// inbound ones. It owns the per-piece watermarks and is not safe for
// concurrent use.
type Synchronizer struct {
	sessionID  string
	store      Store
	clock      clockwork.Clock
	window     time.Duration
	watermarks map[string]int64
}

// SynchronizerOption configures a Synchronizer
type SynchronizerOption func(*Synchronizer)

// WithClock overrides the wall clock used for stamping and staleness checks
func WithClock(clock clockwork.Clock) SynchronizerOption {
	return func(s *Synchronizer) { s.clock = clock }
}

// WithWindow overrides StalenessWindow
func WithWindow(window time.Duration) SynchronizerOption {
	return func(s *Synchronizer) { s.window = window }
}

// NewSynchronizer creates a synchronizer for one session
func NewSynchronizer(sessionID string, store Store, opts ...SynchronizerOption) *Synchronizer {
	s := &Synchronizer{
		sessionID:  sessionID,
		store:      store,
		clock:      clockwork.NewRealClock(),
		window:     StalenessWindow,
		watermarks: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SessionID returns the session this synchronizer is bound to
func (s *Synchronizer) SessionID() string {
	return s.sessionID
}

// Stamp assigns the publish timestamp to a local event and records it as the
// piece watermark, so the store echoing our own write back is filtered out.
// Timestamps are strictly increasing per piece even within one millisecond.
func (s *Synchronizer) Stamp(ev placement.Event) placement.Event {
	ts := s.clock.Now().UnixMilli()
	if wm, ok := s.watermarks[ev.PieceID]; ok && ts <= wm {
		ts = wm + 1
	}
	ev.Timestamp = ts
	s.watermarks[ev.PieceID] = ts
	return ev
}

// Write sends an already stamped event to the store. It touches no
// synchronizer state and may run off the event loop.
func (s *Synchronizer) Write(ctx context.Context, ev placement.Event) error {
	return syncErr("publish", s.store.PutPiece(ctx, s.sessionID, ev))
}

// Publish stamps and writes one event. Each call is an independent write;
// the two halves of a swap are published separately.
func (s *Synchronizer) Publish(ctx context.Context, ev placement.Event) (placement.Event, error) {
	ev = s.Stamp(ev)
	if err := s.Write(ctx, ev); err != nil {
		return ev, err
	}
	return ev, nil
}

// OnRemoteEvent applies the staleness filter to an inbound event. It returns
// the event and true when it should be merged, advancing the watermark.
// Events dated more than the window ahead of the clock are dropped too, so a
// fast writer clock cannot pin a piece's watermark.
func (s *Synchronizer) OnRemoteEvent(ev placement.Event) (placement.Event, bool) {
	if wm, ok := s.watermarks[ev.PieceID]; ok && ev.Timestamp <= wm {
		log.Debug().
			Str("session_id", s.sessionID).
			Str("piece_id", ev.PieceID).
			Int64("timestamp", ev.Timestamp).
			Int64("watermark", wm).
			Msg("dropping event at or below watermark")
		return placement.Event{}, false
	}

	age := s.clock.Now().UnixMilli() - ev.Timestamp
	if age > s.window.Milliseconds() {
		log.Debug().
			Str("session_id", s.sessionID).
			Str("piece_id", ev.PieceID).
			Int64("age_ms", age).
			Msg("dropping stale event")
		return placement.Event{}, false
	}

	if -age > s.window.Milliseconds() {
		log.Debug().
			Str("session_id", s.sessionID).
			Str("piece_id", ev.PieceID).
			Int64("ahead_ms", -age).
			Msg("dropping event dated in the future")
		return placement.Event{}, false
	}

	s.watermarks[ev.PieceID] = ev.Timestamp
	return ev, true
}

// Seed accepts a bootstrap snapshot of the pieces subtree. Snapshot records
// are old by construction, so only the watermark check applies. It returns the
// events that should be merged.
func (s *Synchronizer) Seed(events []placement.Event) []placement.Event {
	accepted := make([]placement.Event, 0, len(events))
	for _, ev := range events {
		if wm, ok := s.watermarks[ev.PieceID]; ok && ev.Timestamp <= wm {
			continue
		}
		s.watermarks[ev.PieceID] = ev.Timestamp
		accepted = append(accepted, ev)
	}
	return accepted
}

// Watermark returns the last accepted timestamp for a piece
func (s *Synchronizer) Watermark(pieceID string) (int64, bool) {
	wm, ok := s.watermarks[pieceID]
	return wm, ok
}
