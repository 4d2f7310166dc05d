package store

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natstest "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/placement"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/session"
)

func TestKVKeyLayout(t *testing.T) {
	assert.Equal(t, "ab12.meta", metaKey("ab12"))
	assert.Equal(t, "ab12.pieces.p0_1", pieceKey("ab12", "p0_1"))
	assert.Equal(t, "ab12.players.alice", playerKey("ab12", "alice"))
	assert.Equal(t, "p0_1", lastToken(pieceKey("ab12", "p0_1")))
}

func TestValidToken(t *testing.T) {
	for _, tok := range []string{"ab12", "p3_4", "4f0c1a2b-aaaa"} {
		assert.NoError(t, validToken(tok), tok)
	}
	for _, tok := range []string{"", "a.b", "a*", "a>", "a b"} {
		assert.Error(t, validToken(tok), tok)
	}
}

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

func newTestKV(t *testing.T, srv *server.Server) *KV {
	t.Helper()
	cfg := DefaultKVConfig()
	cfg.URL = srv.ClientURL()
	cfg.Bucket = fmt.Sprintf("SESSIONS_%d", bucketSeq.Add(1))
	cfg.MaxReconnects = 0
	kv, err := NewKV(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

var bucketSeq atomic.Int64

func TestKVContract(t *testing.T) {
	srv := runJetStream(t)
	runStoreContract(t, func(t *testing.T) session.Store { return newTestKV(t, srv) })
}

func TestKVReopensExistingBucket(t *testing.T) {
	ctx := context.Background()
	srv := runJetStream(t)
	first := newTestKV(t, srv)
	require.NoError(t, first.CreateSession(ctx, "s1", session.Record{PuzzleID: "lake", Difficulty: 2}))

	cfg := first.config
	second, err := NewKV(cfg)
	require.NoError(t, err)
	defer second.Close()

	rec, err := second.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "lake", rec.PuzzleID)
}

func TestKVPlayerWatchReplaysBeforeFirstSnapshot(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV(t, runJetStream(t))

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, kv.PutPlayer(ctx, "s1", session.Player{ID: id}))
	}
	require.NoError(t, kv.RemovePlayer(ctx, "s1", "b"))

	sub, err := kv.WatchPlayers(ctx, "s1")
	require.NoError(t, err)
	defer sub.Stop()

	// one snapshot for the whole replay, not one per stored key
	first := nextUpdate(t, sub)
	assert.Equal(t, session.Roster{"a": {ID: "a"}, "c": {ID: "c"}}, first)
	select {
	case extra := <-sub.Updates():
		t.Fatalf("unexpected snapshot %v", extra)
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, kv.RemovePlayer(ctx, "s1", "c"))
	assert.Equal(t, session.Roster{"a": {ID: "a"}}, nextUpdate(t, sub))
}

func TestKVRejectsInvalidKeys(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV(t, runJetStream(t))

	assert.Error(t, kv.CreateSession(ctx, "a.b", session.Record{}))
	assert.Error(t, kv.PutPiece(ctx, "s1", placement.Event{PieceID: "p>"}))
	assert.Error(t, kv.PutPlayer(ctx, "s*", session.Player{ID: "a"}))
	_, err := kv.WatchPieces(ctx, "")
	assert.Error(t, err)
}
