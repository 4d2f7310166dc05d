package gateway

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/events"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/multiplayer"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/piece"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/placement"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/roster"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/session"
)

const announceTimeout = 10 * time.Second

// Room is the gateway's observer view of one session. It relays everything
// the view accepts to the session's WebSocket connections.
type Room struct {
	id        string
	session   *multiplayer.Session
	cm        *ConnectionManager
	publisher events.Publisher
	clock     clockwork.Clock

	// names is only touched from notifier callbacks, which run on the
	// session loop.
	names map[string]string

	// refs and closing are guarded by the registry mutex
	refs    int
	closing bool

	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

var _ multiplayer.Notifier = (*Room)(nil)

func openRoom(ctx context.Context, store session.Store, sessionID string, cm *ConnectionManager, publisher events.Publisher, clock clockwork.Clock) (*Room, error) {
	r := &Room{
		id:        sessionID,
		cm:        cm,
		publisher: publisher,
		clock:     clock,
		names:     make(map[string]string),
		done:      make(chan struct{}),
	}

	s, err := multiplayer.Join(ctx, store, sessionID, multiplayer.Config{
		Player:      session.Player{ID: "gateway-" + uuid.NewString()},
		Observer:    true,
		Clock:       clock,
		LeavePolicy: roster.DropMissing{},
		Notifier:    r,
	})
	if err != nil {
		return nil, err
	}
	r.session = s
	return r, nil
}

// run drives the session loop until ctx is cancelled
func (r *Room) run(ctx context.Context) {
	defer close(r.done)

	if err := r.session.Run(ctx); err != nil {
		log.Error().Err(err).Str("session_id", r.id).Msg("room loop stopped")
	}
	r.session.Wait()
	r.wg.Wait()
}

// Snapshot captures what a newly connected browser needs to render the session
func (r *Room) Snapshot(ctx context.Context) (SnapshotPayload, error) {
	state, err := r.session.State(ctx)
	if err != nil {
		return SnapshotPayload{}, err
	}
	players, err := r.session.Players(ctx)
	if err != nil {
		return SnapshotPayload{}, err
	}

	out := SnapshotPayload{
		Record:  r.session.Record(),
		Pieces:  make([]placement.Event, 0, state.Len()),
		Players: make([]session.Player, 0, len(players)),
		Correct: state.CorrectCount(),
	}
	for _, p := range state.Pieces() {
		out.Pieces = append(out.Pieces, placement.Event{PieceID: p.ID, Slot: p.Current, Rotation: p.Rotation})
	}
	for _, p := range players {
		out.Players = append(out.Players, p)
	}
	sort.Slice(out.Players, func(i, j int) bool { return out.Players[i].JoinedAt.Before(out.Players[j].JoinedAt) })
	return out, nil
}

// State returns the room's current view of the puzzle
func (r *Room) State(ctx context.Context) (placement.State, error) {
	return r.session.State(ctx)
}

// Admit validates a browser move against the room's view and settles its
// timestamp on the server clock
func (r *Room) Admit(ctx context.Context, ev placement.Event) (placement.Event, error) {
	return r.session.Admit(ctx, ev)
}

func (r *Room) broadcast(t MessageType, payload any) {
	msg, err := newMessage(t, r.id, r.clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("session_id", r.id).Msg("failed to build room message")
		return
	}
	r.cm.BroadcastToSession(r.id, msg)
}

// opening reports whether the view is still seeding from the store snapshot.
// Notifications raised then describe history, not news.
func (r *Room) opening() bool {
	return r.session == nil
}

func (r *Room) PiecePlaced(p piece.Piece) {
	if r.opening() {
		return
	}
	r.broadcast(MessagePiecePlaced, PiecePlacedPayload{PieceID: p.ID})
}

func (r *Room) PuzzleCompleted(placement.State) {
	if r.opening() {
		return
	}
	rec := r.session.Record()
	completedAt := r.clock.Now()

	r.broadcast(MessagePuzzleCompleted, PuzzleCompletedPayload{
		PuzzleID:    rec.PuzzleID,
		Difficulty:  rec.Difficulty,
		CompletedAt: completedAt,
	})

	players := make([]string, 0, len(r.names))
	for _, name := range r.names {
		players = append(players, name)
	}
	sort.Strings(players)

	ev, err := events.NewEvent(events.EventTypePuzzleCompleted, r.id, completedAt, events.PuzzleCompletedPayload{
		PuzzleID:    rec.PuzzleID,
		Difficulty:  rec.Difficulty,
		HostName:    r.names[rec.HostID],
		Players:     players,
		StartedAt:   rec.CreatedAt,
		CompletedAt: completedAt,
	})
	if err != nil {
		log.Error().Err(err).Str("session_id", r.id).Msg("failed to build completion event")
		return
	}
	r.announce(ev)
}

func (r *Room) PlayerJoined(p session.Player) {
	r.names[p.ID] = p.Name
	if r.opening() {
		return
	}
	r.broadcast(MessagePlayerJoined, p)
}

func (r *Room) PlayerLeft(p session.Player) {
	r.broadcast(MessagePlayerLeft, p)
}

func (r *Room) PieceUpdated(ev placement.Event, _ bool) {
	if r.opening() {
		return
	}
	r.broadcast(MessagePieceMoved, ev)
}

func (r *Room) SyncError(err error) {
	log.Error().Err(err).Str("session_id", r.id).Msg("room sync error")
	r.broadcast(MessageError, ErrorPayload{Message: err.Error()})
}

// announce publishes off the session loop
func (r *Room) announce(ev events.Event) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), announceTimeout)
		defer cancel()
		if err := r.publisher.Publish(ctx, ev); err != nil {
			log.Error().Err(err).Str("session_id", r.id).Str("event_type", string(ev.Type)).Msg("failed to announce event")
		}
	}()
}
