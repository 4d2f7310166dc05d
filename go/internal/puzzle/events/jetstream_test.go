package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natstest "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runJetStream(t *testing.T) *server.Server {
	t.Helper()
	opts := natstest.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	srv := natstest.RunServer(&opts)
	t.Cleanup(srv.Shutdown)
	return srv
}

func testStreamConfig(srv *server.Server) JetStreamConfig {
	cfg := DefaultJetStreamConfig()
	cfg.URL = srv.ClientURL()
	cfg.MaxReconnects = 0
	return cfg
}

func streamMsgs(t *testing.T, srv *server.Server, name string) uint64 {
	t.Helper()
	ctx := context.Background()
	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	js, err := jetstream.New(nc)
	require.NoError(t, err)
	stream, err := js.Stream(ctx, name)
	require.NoError(t, err)
	info, err := stream.Info(ctx)
	require.NoError(t, err)
	return info.State.Msgs
}

func TestAnnouncerDedupesCompletionAcrossReplicas(t *testing.T) {
	ctx := context.Background()
	srv := runJetStream(t)
	cfg := testStreamConfig(srv)

	first, err := NewAnnouncer(cfg)
	require.NoError(t, err)
	defer first.Close()
	// a second gateway replica finds the stream already there
	second, err := NewAnnouncer(cfg)
	require.NoError(t, err)
	defer second.Close()

	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	payload := PuzzleCompletedPayload{PuzzleID: "lighthouse", Difficulty: 3, StartedAt: at, CompletedAt: at.Add(time.Minute)}
	a, err := NewEvent(EventTypePuzzleCompleted, "s1", at, payload)
	require.NoError(t, err)
	b, err := NewEvent(EventTypePuzzleCompleted, "s1", at.Add(time.Millisecond), payload)
	require.NoError(t, err)

	require.NoError(t, first.Publish(ctx, a))
	require.NoError(t, second.Publish(ctx, b))
	require.NoError(t, first.Publish(ctx, a))
	assert.EqualValues(t, 1, streamMsgs(t, srv, cfg.StreamName))

	// joins are never collapsed
	for i := 0; i < 2; i++ {
		j, err := NewEvent(EventTypePlayerJoined, "s1", at, PlayerJoinedPayload{PlayerID: "p1", Name: "Bob"})
		require.NoError(t, err)
		require.NoError(t, first.Publish(ctx, j))
	}
	assert.EqualValues(t, 3, streamMsgs(t, srv, cfg.StreamName))
}

func TestConsumerRedeliversFailedCompletions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := runJetStream(t)
	cfg := testStreamConfig(srv)

	announcer, err := NewAnnouncer(cfg)
	require.NoError(t, err)
	defer announcer.Close()

	ccfg := DefaultConsumerConfig()
	ccfg.URL = srv.ClientURL()
	ccfg.MaxReconnects = 0
	ccfg.AckWait = time.Second

	var calls atomic.Int32
	handled := make(chan Event, 4)
	consumer, err := NewConsumer(ccfg, func(_ context.Context, ev Event) error {
		if calls.Add(1) == 1 {
			return errors.New("leaderboard unavailable")
		}
		handled <- ev
		return nil
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- consumer.Start(ctx) }()

	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	joined, err := NewEvent(EventTypePlayerJoined, "s1", at, PlayerJoinedPayload{PlayerID: "p1"})
	require.NoError(t, err)
	require.NoError(t, announcer.Publish(ctx, joined))
	completed, err := NewEvent(EventTypePuzzleCompleted, "s1", at, PuzzleCompletedPayload{PuzzleID: "lighthouse", Difficulty: 3})
	require.NoError(t, err)
	require.NoError(t, announcer.Publish(ctx, completed))

	// only completions reach the handler, the first attempt is NAKed
	select {
	case ev := <-handled:
		assert.Equal(t, completed.ID, ev.ID)
		assert.Equal(t, EventTypePuzzleCompleted, ev.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("completion was not redelivered")
	}
	assert.EqualValues(t, 2, calls.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
	require.NoError(t, consumer.Stop())
}
