package multiplayer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/piece"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/placement"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/roster"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/session"
)

// ErrClosed is returned by commands submitted after the event loop stopped
var ErrClosed = errors.New("session closed")

// Config holds the per-view configuration of a session
type Config struct {
	Player session.Player
	// Observer views follow the session without registering in the roster
	Observer    bool
	Clock       clockwork.Clock
	LeavePolicy roster.LeavePolicy
	Notifier    Notifier
	QueueSize   int
}

func (c *Config) defaults() {
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Notifier == nil {
		c.Notifier = NopNotifier{}
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
}

// Session is one participant's view of a shared puzzle. All state is mutated
// by the Run loop; Move and Rotate hand their work to it.
type Session struct {
	id     string
	record session.Record
	store  session.Store
	config Config

	board   *placement.Board
	sync    *session.Synchronizer
	tracker *roster.Tracker
	subs    *session.Subscriptions
	marked  bool

	commands chan command
	outbox   chan job
	failures chan error
	stopped  chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type command struct {
	fn   func() error
	done chan error
}

// job is a store write executed off the loop by the publisher goroutine
type job struct {
	op string
	fn func(ctx context.Context) error
}

// Host bootstraps a new shared session and opens a view on it
func Host(ctx context.Context, store session.Store, sessionID string, rec session.Record, cfg Config) (*Session, error) {
	cfg.defaults()
	if rec.HostID == "" {
		rec.HostID = cfg.Player.ID
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = cfg.Clock.Now()
	}
	// Validate the layout before anything is written to the store
	if _, err := rec.InitialState(); err != nil {
		return nil, err
	}

	rec, err := session.Bootstrap(ctx, store, sessionID, rec)
	if err != nil {
		return nil, err
	}
	return open(ctx, store, sessionID, rec, cfg)
}

// Join opens a view on an existing session. It fails with
// *session.SessionNotFoundError if the host has not bootstrapped it.
// ctx bounds the lifetime of the view's store subscriptions, as it does for Host.
func Join(ctx context.Context, store session.Store, sessionID string, cfg Config) (*Session, error) {
	rec, err := session.Join(ctx, store, sessionID)
	if err != nil {
		return nil, err
	}
	return open(ctx, store, sessionID, rec, cfg)
}

func open(ctx context.Context, store session.Store, sessionID string, rec session.Record, cfg Config) (*Session, error) {
	cfg.defaults()

	initial, err := rec.InitialState()
	if err != nil {
		return nil, fmt.Errorf("derive initial state: %w", err)
	}

	s := &Session{
		id:       sessionID,
		record:   rec,
		store:    store,
		config:   cfg,
		board:    placement.NewBoard(initial, cfg.Notifier),
		sync:     session.NewSynchronizer(sessionID, store, session.WithClock(cfg.Clock)),
		tracker:  roster.NewTracker(cfg.Notifier, cfg.LeavePolicy),
		commands: make(chan command),
		outbox:   make(chan job, cfg.QueueSize),
		failures: make(chan error, 16),
		stopped:  make(chan struct{}),
	}

	// Subscribe before reading the snapshot so nothing written in between is
	// missed; the watermarks set by Seed drop the overlap.
	subs, err := session.Subscribe(ctx, store, sessionID)
	if err != nil {
		return nil, err
	}
	s.subs = subs

	snapshot, err := store.Pieces(ctx, sessionID)
	if err != nil {
		_ = subs.Close()
		return nil, &session.SyncError{Op: "snapshot", Err: err}
	}
	for _, ev := range s.sync.Seed(snapshot) {
		if err := s.board.ApplyRemote(ev); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Str("piece_id", ev.PieceID).Msg("skipping snapshot record")
		}
	}

	s.markCompleted()

	if !cfg.Observer {
		p := cfg.Player
		if p.JoinedAt.IsZero() {
			p.JoinedAt = cfg.Clock.Now()
		}
		if err := store.PutPlayer(ctx, sessionID, p); err != nil {
			_ = subs.Close()
			return nil, &session.SyncError{Op: "register player", Err: err}
		}
	}

	log.Info().
		Str("session_id", sessionID).
		Str("player_id", cfg.Player.ID).
		Bool("observer", cfg.Observer).
		Int("seeded_pieces", len(snapshot)).
		Msg("session view opened")

	return s, nil
}

// ID returns the session id
func (s *Session) ID() string { return s.id }

// Record returns the session record as loaded when the view was opened
func (s *Session) Record() session.Record { return s.record }

// Run is the session event loop. It returns when ctx is done or a
// subscription ends, and always releases both subscriptions.
func (s *Session) Run(ctx context.Context) error {
	s.wg.Add(1)
	go s.publish(context.WithoutCancel(ctx))

	defer s.teardown()

	for {
		select {
		case <-ctx.Done():
			return nil

		case cmd := <-s.commands:
			cmd.done <- cmd.fn()

		case ev, ok := <-s.subs.Pieces.Updates():
			if !ok {
				return &session.SyncError{Op: "watch pieces", Err: errors.New("subscription closed")}
			}
			s.handleRemote(ev)

		case snap, ok := <-s.subs.Players.Updates():
			if !ok {
				return &session.SyncError{Op: "watch players", Err: errors.New("subscription closed")}
			}
			s.tracker.Observe(snap)

		case err := <-s.failures:
			s.config.Notifier.SyncError(err)
		}
	}
}

// Move drops a piece on a slot and publishes the resulting events
func (s *Session) Move(ctx context.Context, pieceID string, target piece.Slot) error {
	return s.submit(ctx, func() error {
		events, err := s.board.Move(pieceID, target)
		if err != nil {
			return err
		}
		for _, ev := range events {
			s.emit(ev)
		}
		return nil
	})
}

// Rotate turns a piece a quarter turn and publishes the event
func (s *Session) Rotate(ctx context.Context, pieceID string, dir placement.Direction) error {
	return s.submit(ctx, func() error {
		ev, err := s.board.Rotate(pieceID, dir)
		if err != nil {
			return err
		}
		s.emit(ev)
		return nil
	})
}

// State returns the current puzzle snapshot as seen by the loop
func (s *Session) State(ctx context.Context) (placement.State, error) {
	var out placement.State
	err := s.submit(ctx, func() error {
		out = s.board.State()
		return nil
	})
	return out, err
}

// Admit prepares an event written to the store on behalf of another
// participant, such as a browser behind the gateway. The event must apply to
// the current state. Its timestamp is replaced by the view's clock when
// missing, ahead of it, or older than the staleness window, then lifted above
// the piece watermark so the view accepts the write when it comes back.
func (s *Session) Admit(ctx context.Context, ev placement.Event) (placement.Event, error) {
	var out placement.Event
	err := s.submit(ctx, func() error {
		if _, err := placement.ApplyRemote(s.board.State(), ev); err != nil {
			return err
		}
		now := s.config.Clock.Now().UnixMilli()
		if ev.Timestamp > now || now-ev.Timestamp > session.StalenessWindow.Milliseconds() {
			ev.Timestamp = now
		}
		if wm, ok := s.sync.Watermark(ev.PieceID); ok && ev.Timestamp <= wm {
			ev.Timestamp = wm + 1
		}
		out = ev
		return nil
	})
	return out, err
}

// Players returns the tracked roster
func (s *Session) Players(ctx context.Context) (session.Roster, error) {
	var out session.Roster
	err := s.submit(ctx, func() error {
		out = s.tracker.Players()
		return nil
	})
	return out, err
}

// Leave removes this player from the shared roster
func (s *Session) Leave(ctx context.Context) error {
	if s.config.Observer {
		return nil
	}
	if err := s.store.RemovePlayer(ctx, s.id, s.config.Player.ID); err != nil {
		return &session.SyncError{Op: "leave", Err: err}
	}
	return nil
}

// Done is closed once the loop has stopped and subscriptions are released
func (s *Session) Done() <-chan struct{} {
	return s.stopped
}

func (s *Session) submit(ctx context.Context, fn func() error) error {
	c := command{fn: fn, done: make(chan error, 1)}
	select {
	case s.commands <- c:
	case <-s.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-c.done
}

// emit stamps a local event and queues its write. The loop never waits on the
// store.
func (s *Session) emit(ev placement.Event) {
	ev = s.sync.Stamp(ev)
	s.config.Notifier.PieceUpdated(ev, false)
	s.enqueue(job{op: "publish", fn: func(ctx context.Context) error {
		return s.sync.Write(ctx, ev)
	}})
	s.markCompleted()
}

func (s *Session) handleRemote(ev placement.Event) {
	accepted, ok := s.sync.OnRemoteEvent(ev)
	if !ok {
		return
	}
	if err := s.board.ApplyRemote(accepted); err != nil {
		log.Warn().Err(err).Str("session_id", s.id).Str("piece_id", ev.PieceID).Msg("failed to merge remote event")
		s.config.Notifier.SyncError(err)
		return
	}
	s.config.Notifier.PieceUpdated(accepted, true)
	s.markCompleted()
}

// markCompleted records completion on the shared record once the board has
// latched. Every view that sees the puzzle solved attempts it; only the first
// one flips the status.
func (s *Session) markCompleted() {
	if s.marked || !s.board.State().Completed() {
		return
	}
	s.marked = true
	at := s.config.Clock.Now()
	s.enqueue(job{op: "complete", fn: func(ctx context.Context) error {
		flipped, err := s.store.CompleteSession(ctx, s.id, at)
		if err != nil {
			return err
		}
		if flipped {
			log.Info().Str("session_id", s.id).Str("player_id", s.config.Player.ID).Msg("session marked completed")
		}
		return nil
	}})
}

func (s *Session) enqueue(j job) {
	select {
	case s.outbox <- j:
	default:
		s.config.Notifier.SyncError(&session.SyncError{Op: j.op, Err: errors.New("outbound queue full")})
	}
}

// publish drains the outbox in order. Writes already queued when the loop
// stops still run; their failures are no longer reported.
func (s *Session) publish(ctx context.Context) {
	defer s.wg.Done()
	for j := range s.outbox {
		if err := j.fn(ctx); err != nil {
			log.Error().Err(err).Str("session_id", s.id).Str("op", j.op).Msg("store write failed")
			select {
			case s.failures <- err:
			case <-s.stopped:
			default:
			}
		}
	}
}

func (s *Session) teardown() {
	s.stopOnce.Do(func() {
		if err := s.subs.Close(); err != nil {
			log.Error().Err(err).Str("session_id", s.id).Msg("failed to release subscriptions")
		}
		close(s.stopped)
		close(s.outbox)
		log.Info().Str("session_id", s.id).Str("player_id", s.config.Player.ID).Msg("session view closed")
	})
}

// Close releases the subscriptions of a view whose loop was never started
func (s *Session) Close() error {
	s.teardown()
	return nil
}

// Wait blocks until queued store writes have drained after Run returned
func (s *Session) Wait() {
	s.wg.Wait()
}
