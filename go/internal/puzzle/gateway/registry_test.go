package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/placement"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/session"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/store"
)

// gatedStore holds every GetSession until gate is closed
type gatedStore struct {
	session.Store
	gate chan struct{}

	mu   sync.Mutex
	gets int
}

func (s *gatedStore) GetSession(ctx context.Context, sessionID string) (session.Record, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()

	select {
	case <-s.gate:
	case <-ctx.Done():
		return session.Record{}, ctx.Err()
	}
	return s.Store.GetSession(ctx, sessionID)
}

func (s *gatedStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func TestRegistryOpensOneRoomPerSession(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.CreateSession(ctx, "s1", session.Record{
		PuzzleID:   "lighthouse",
		Difficulty: 3,
		Seed:       7,
		Image:      placement.ImageDimensions{Width: 900, Height: 600},
	}))

	gated := &gatedStore{Store: mem, gate: make(chan struct{})}
	clock := clockwork.NewRealClock()
	g := NewRegistry(gated, &fakePublisher{}, clock)
	g.attach(NewConnectionManager(DefaultConnectionConfig(), g, clock))
	t.Cleanup(g.Close)

	const callers = 8
	rooms := make(chan *Room, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := g.Open(ctx, "s1")
			assert.NoError(t, err)
			rooms <- r
		}()
	}

	require.Eventually(t, func() bool { return gated.calls() > 0 }, time.Second, 5*time.Millisecond)

	// lookups are answered while the view is still loading
	lookups := make(chan int, 1)
	go func() {
		_, _ = g.Room("s2")
		lookups <- g.Len()
	}()
	select {
	case n := <-lookups:
		assert.Equal(t, 0, n)
	case <-time.After(time.Second):
		t.Fatal("registry lock held while a room was opening")
	}

	close(gated.gate)
	wg.Wait()
	close(rooms)

	var first *Room
	for r := range rooms {
		require.NotNil(t, r)
		if first == nil {
			first = r
		}
		assert.Same(t, first, r)
	}
	assert.Equal(t, 1, gated.calls())
	assert.Equal(t, 1, g.Len())

	g.mu.Lock()
	assert.Equal(t, callers, first.refs)
	g.mu.Unlock()

	for i := 0; i < callers-1; i++ {
		g.Release(first)
	}
	r, ok := g.Room("s1")
	require.True(t, ok)
	assert.Same(t, first, r)

	g.Release(first)
	assert.Eventually(t, func() bool { return g.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRegistryReopensAfterRelease(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.CreateSession(ctx, "s1", session.Record{
		PuzzleID:   "lighthouse",
		Difficulty: 2,
		Seed:       3,
		Image:      placement.ImageDimensions{Width: 400, Height: 400},
	}))

	clock := clockwork.NewRealClock()
	g := NewRegistry(mem, &fakePublisher{}, clock)
	g.attach(NewConnectionManager(DefaultConnectionConfig(), g, clock))
	t.Cleanup(g.Close)

	first, err := g.Open(ctx, "s1")
	require.NoError(t, err)
	g.Release(first)

	second, err := g.Open(ctx, "s1")
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	_, err = g.Open(ctx, "missing")
	var notFound *session.SessionNotFoundError
	assert.ErrorAs(t, err, &notFound)

	g.Release(second)
}
