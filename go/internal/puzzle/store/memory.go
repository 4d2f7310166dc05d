package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/placement"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/session"
)

const memoryBufferSize = 1024

// Memory is an in-process shared store. Every client holding the same Memory
// value sees the same tree, which makes it suitable for tests and single-node
// deployments.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
}

type memorySession struct {
	record     *session.Record
	pieces     map[string]placement.Event
	players    session.Roster
	pieceSubs  map[*memorySub[placement.Event]]struct{}
	playerSubs map[*memorySub[session.Roster]]struct{}
}

// NewMemory creates an empty store
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*memorySession)}
}

var _ session.Store = (*Memory)(nil)

// node returns the subtree for a session, creating it on first touch. Callers
// hold m.mu.
func (m *Memory) node(sessionID string) *memorySession {
	s, ok := m.sessions[sessionID]
	if !ok {
		s = &memorySession{
			pieces:     make(map[string]placement.Event),
			players:    make(session.Roster),
			pieceSubs:  make(map[*memorySub[placement.Event]]struct{}),
			playerSubs: make(map[*memorySub[session.Roster]]struct{}),
		}
		m.sessions[sessionID] = s
	}
	return s
}

func (m *Memory) CreateSession(_ context.Context, sessionID string, rec session.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.node(sessionID)
	if n.record != nil {
		return session.ErrSessionExists
	}
	n.record = &rec
	return nil
}

func (m *Memory) GetSession(_ context.Context, sessionID string) (session.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.sessions[sessionID]
	if !ok || n.record == nil {
		return session.Record{}, &session.SessionNotFoundError{SessionID: sessionID}
	}
	return *n.record, nil
}

func (m *Memory) CompleteSession(_ context.Context, sessionID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.sessions[sessionID]
	if !ok || n.record == nil {
		return false, &session.SessionNotFoundError{SessionID: sessionID}
	}
	if n.record.Status == session.StatusCompleted {
		return false, nil
	}
	n.record.Status = session.StatusCompleted
	n.record.CompletedAt = &at
	return true, nil
}

func (m *Memory) PutPiece(_ context.Context, sessionID string, ev placement.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.node(sessionID)
	n.pieces[ev.PieceID] = ev
	for sub := range n.pieceSubs {
		sub.deliver(ev)
	}
	return nil
}

func (m *Memory) Pieces(_ context.Context, sessionID string) ([]placement.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	out := make([]placement.Event, 0, len(n.pieces))
	for _, ev := range n.pieces {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PieceID < out[j].PieceID })
	return out, nil
}

func (m *Memory) WatchPieces(ctx context.Context, sessionID string) (session.Subscription[placement.Event], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.node(sessionID)
	sub := newMemorySub[placement.Event](sessionID, func(s *memorySub[placement.Event]) {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(n.pieceSubs, s)
	})
	n.pieceSubs[sub] = struct{}{}
	sub.stopOnDone(ctx)
	return sub, nil
}

func (m *Memory) PutPlayer(_ context.Context, sessionID string, p session.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.node(sessionID)
	n.players[p.ID] = p
	n.publishRoster()
	return nil
}

func (m *Memory) RemovePlayer(_ context.Context, sessionID string, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.node(sessionID)
	if _, ok := n.players[playerID]; !ok {
		return nil
	}
	delete(n.players, playerID)
	n.publishRoster()
	return nil
}

func (m *Memory) Players(_ context.Context, sessionID string) (session.Roster, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.sessions[sessionID]
	if !ok {
		return session.Roster{}, nil
	}
	return n.players.Clone(), nil
}

// WatchPlayers delivers the current roster immediately, then one snapshot per change
func (m *Memory) WatchPlayers(ctx context.Context, sessionID string) (session.Subscription[session.Roster], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.node(sessionID)
	sub := newMemorySub[session.Roster](sessionID, func(s *memorySub[session.Roster]) {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(n.playerSubs, s)
	})
	n.playerSubs[sub] = struct{}{}
	sub.deliver(n.players.Clone())
	sub.stopOnDone(ctx)
	return sub, nil
}

func (n *memorySession) publishRoster() {
	for sub := range n.playerSubs {
		sub.deliver(n.players.Clone())
	}
}

type memorySub[T any] struct {
	sessionID string
	ch        chan T
	done      chan struct{}
	detach    func(*memorySub[T])

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func newMemorySub[T any](sessionID string, detach func(*memorySub[T])) *memorySub[T] {
	return &memorySub[T]{
		sessionID: sessionID,
		ch:        make(chan T, memoryBufferSize),
		done:      make(chan struct{}),
		detach:    detach,
	}
}

func (s *memorySub[T]) Updates() <-chan T {
	return s.ch
}

// deliver never blocks the writer; a subscriber that falls a full buffer
// behind loses updates.
func (s *memorySub[T]) deliver(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- v:
	default:
		log.Warn().Str("session_id", s.sessionID).Msg("subscriber buffer full, dropping update")
	}
}

func (s *memorySub[T]) Stop() error {
	s.once.Do(func() {
		s.detach(s)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		close(s.done)
	})
	return nil
}

func (s *memorySub[T]) stopOnDone(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-s.done:
		}
	}()
}
