package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/events"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/session"
)

// Registry owns the open rooms and routes browser messages to the store
type Registry struct {
	store     session.Store
	publisher events.Publisher
	clock     clockwork.Clock
	cm        *ConnectionManager

	opening singleflight.Group

	mu    sync.Mutex
	rooms map[string]*Room
}

var _ ClientHandler = (*Registry)(nil)

// NewRegistry creates an empty registry. attach must be called before use.
func NewRegistry(store session.Store, publisher events.Publisher, clock clockwork.Clock) *Registry {
	return &Registry{
		store:     store,
		publisher: publisher,
		clock:     clock,
		rooms:     make(map[string]*Room),
	}
}

func (g *Registry) attach(cm *ConnectionManager) {
	g.cm = cm
}

// Open returns the room for a session, opening an observer view on first
// use. Every successful Open must be paired with a Release. Concurrent opens
// of one session share a single view; the registry lock is never held while
// the view reads the store.
func (g *Registry) Open(ctx context.Context, sessionID string) (*Room, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		v, err, _ := g.opening.Do(sessionID, func() (any, error) {
			return g.open(ctx, sessionID)
		})
		if err != nil {
			return nil, err
		}

		r := v.(*Room)
		g.mu.Lock()
		if !r.closing {
			r.refs++
			g.mu.Unlock()
			return r, nil
		}
		// released by everyone else before this caller took its reference
		g.mu.Unlock()
	}
}

// open returns the live room for sessionID or registers a new one with no
// references. Callers go through the opening group.
func (g *Registry) open(ctx context.Context, sessionID string) (*Room, error) {
	g.mu.Lock()
	if r, ok := g.rooms[sessionID]; ok && !r.closing {
		g.mu.Unlock()
		return r, nil
	}
	g.mu.Unlock()

	// The view's subscriptions live as long as runCtx, not the request
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r, err := openRoom(runCtx, g.store, sessionID, g.cm, g.publisher, g.clock)
	if err != nil {
		cancel()
		return nil, err
	}
	r.cancel = cancel

	g.mu.Lock()
	g.rooms[sessionID] = r
	g.mu.Unlock()

	go func() {
		r.run(runCtx)
		g.mu.Lock()
		if g.rooms[sessionID] == r {
			delete(g.rooms, sessionID)
		}
		g.mu.Unlock()
		log.Info().Str("session_id", sessionID).Msg("room closed")
	}()

	log.Info().Str("session_id", sessionID).Msg("room opened")
	return r, nil
}

// Release drops one reference and stops the room when none are left
func (g *Registry) Release(r *Room) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r.refs--
	if r.refs > 0 || r.closing {
		return
	}
	r.closing = true
	r.cancel()
}

// Room returns an open room
func (g *Registry) Room(sessionID string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[sessionID]
	if !ok || r.closing {
		return nil, false
	}
	return r, true
}

// Len returns the number of open rooms
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Close stops every room and waits for their loops to exit
func (g *Registry) Close() {
	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.mu.Unlock()

	for _, r := range rooms {
		g.mu.Lock()
		r.closing = true
		g.mu.Unlock()
		r.cancel()
	}
	for _, r := range rooms {
		<-r.done
	}
}

func (g *Registry) HandleClientMessage(ctx context.Context, c *Connection, msg ClientMessage) error {
	room := c.room
	if room == nil {
		return errors.New("session is not open")
	}

	switch msg.Type {
	case ClientJoin:
		p := session.Player{ID: c.PlayerID, Name: msg.Name, Color: msg.Color, JoinedAt: g.clock.Now()}
		if err := g.store.PutPlayer(ctx, c.SessionID, p); err != nil {
			return &session.SyncError{Op: "register player", Err: err}
		}
		c.markJoined()

		ev, err := events.NewEvent(events.EventTypePlayerJoined, c.SessionID, p.JoinedAt, events.PlayerJoinedPayload{PlayerID: p.ID, Name: p.Name})
		if err == nil {
			room.announce(ev)
		}
		return nil

	case ClientPiece:
		if !c.Joined() {
			return errors.New("join the session before moving pieces")
		}
		ev, err := room.Admit(ctx, msg.Event())
		if err != nil {
			return err
		}

		if err := g.store.PutPiece(ctx, c.SessionID, ev); err != nil {
			return &session.SyncError{Op: "publish", Err: err}
		}
		return nil
	}
	return fmt.Errorf("unsupported message type %q", msg.Type)
}

// Disconnected removes the player from the roster and releases the
// connection's room.
func (g *Registry) Disconnected(c *Connection) {
	go func() {
		if c.Joined() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := g.store.RemovePlayer(ctx, c.SessionID, c.PlayerID); err != nil {
				log.Error().Err(err).Str("session_id", c.SessionID).Str("player_id", c.PlayerID).Msg("failed to remove player")
			}
		}
		if c.room != nil {
			g.Release(c.room)
		}
	}()
}
