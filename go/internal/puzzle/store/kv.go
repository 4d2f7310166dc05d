package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/placement"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/session"
)

// KVConfig holds configuration for the JetStream KeyValue store
type KVConfig struct {
	URL           string
	Bucket        string
	MaxReconnects int
	ReconnectWait time.Duration
	TTL           time.Duration // How long idle session keys are kept
	Replicas      int
	MaxCASRetries int
}

// DefaultKVConfig returns default KeyValue store configuration
func DefaultKVConfig() KVConfig {
	return KVConfig{
		URL:           nats.DefaultURL,
		Bucket:        "PUZZLE_SESSIONS",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		TTL:           24 * time.Hour,
		Replicas:      1,
		MaxCASRetries: 5,
	}
}

// KV is a shared store backed by a NATS JetStream KeyValue bucket. Keys are
// laid out as <session>.meta, <session>.pieces.<piece> and
// <session>.players.<player>, so subtree watches are subject wildcards.
type KV struct {
	nc     *nats.Conn
	kv     jetstream.KeyValue
	config KVConfig
}

var _ session.Store = (*KV)(nil)

// NewKV connects to NATS and ensures the bucket exists
func NewKV(cfg KVConfig) (*KV, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := ensureBucket(context.Background(), js, cfg)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	return &KV{nc: nc, kv: kv, config: cfg}, nil
}

func ensureBucket(ctx context.Context, js jetstream.JetStream, cfg KVConfig) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, cfg.Bucket)
	if err == nil {
		log.Info().Str("bucket", cfg.Bucket).Msg("using existing KeyValue bucket")
		return kv, nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, fmt.Errorf("get bucket: %w", err)
	}

	kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "Shared puzzle session tree",
		History:     1,
		TTL:         cfg.TTL,
		Storage:     jetstream.FileStorage,
		Replicas:    cfg.Replicas,
	})
	if err != nil {
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	log.Info().Str("bucket", cfg.Bucket).Msg("created KeyValue bucket")
	return kv, nil
}

// Close drains nothing and closes the NATS connection
func (s *KV) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

func metaKey(sessionID string) string { return sessionID + ".meta" }

func pieceKey(sessionID, pieceID string) string { return sessionID + ".pieces." + pieceID }

func playerKey(sessionID, playerID string) string { return sessionID + ".players." + playerID }

func validToken(tok string) error {
	if tok == "" || strings.ContainsAny(tok, ".*> ") {
		return fmt.Errorf("invalid key token %q", tok)
	}
	return nil
}

func lastToken(key string) string {
	return key[strings.LastIndexByte(key, '.')+1:]
}

func (s *KV) CreateSession(ctx context.Context, sessionID string, rec session.Record) error {
	if err := validToken(sessionID); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	if _, err := s.kv.Create(ctx, metaKey(sessionID), data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return session.ErrSessionExists
		}
		return fmt.Errorf("create session record: %w", err)
	}
	return nil
}

func (s *KV) GetSession(ctx context.Context, sessionID string) (session.Record, error) {
	rec, _, err := s.getSession(ctx, sessionID)
	return rec, err
}

func (s *KV) getSession(ctx context.Context, sessionID string) (session.Record, uint64, error) {
	if err := validToken(sessionID); err != nil {
		return session.Record{}, 0, err
	}
	entry, err := s.kv.Get(ctx, metaKey(sessionID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return session.Record{}, 0, &session.SessionNotFoundError{SessionID: sessionID}
		}
		return session.Record{}, 0, fmt.Errorf("get session record: %w", err)
	}
	var rec session.Record
	if err := json.Unmarshal(entry.Value(), &rec); err != nil {
		return session.Record{}, 0, fmt.Errorf("unmarshal session record: %w", err)
	}
	return rec, entry.Revision(), nil
}

// CompleteSession flips the status with a compare-and-set on the record
// revision, retrying when another writer got there first.
func (s *KV) CompleteSession(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	for attempt := 0; attempt <= s.config.MaxCASRetries; attempt++ {
		rec, rev, err := s.getSession(ctx, sessionID)
		if err != nil {
			return false, err
		}
		if rec.Status == session.StatusCompleted {
			return false, nil
		}

		rec.Status = session.StatusCompleted
		rec.CompletedAt = &at
		data, err := json.Marshal(rec)
		if err != nil {
			return false, fmt.Errorf("marshal session record: %w", err)
		}

		if _, err := s.kv.Update(ctx, metaKey(sessionID), data, rev); err != nil {
			var apiErr *jetstream.APIError
			if errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence {
				log.Debug().Str("session_id", sessionID).Int("attempt", attempt+1).Msg("session record changed, retrying")
				continue
			}
			return false, fmt.Errorf("update session record: %w", err)
		}
		return true, nil
	}
	return false, fmt.Errorf("complete session %s: too many concurrent updates", sessionID)
}

func (s *KV) PutPiece(ctx context.Context, sessionID string, ev placement.Event) error {
	if err := validToken(sessionID); err != nil {
		return err
	}
	if err := validToken(ev.PieceID); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal piece event: %w", err)
	}
	if _, err := s.kv.Put(ctx, pieceKey(sessionID, ev.PieceID), data); err != nil {
		return fmt.Errorf("put piece: %w", err)
	}
	return nil
}

func (s *KV) Pieces(ctx context.Context, sessionID string) ([]placement.Event, error) {
	entries, err := s.collect(ctx, pieceKey(sessionID, "*"))
	if err != nil {
		return nil, err
	}
	out := make([]placement.Event, 0, len(entries))
	for _, e := range entries {
		var ev placement.Event
		if err := json.Unmarshal(e.Value(), &ev); err != nil {
			log.Warn().Err(err).Str("key", e.Key()).Msg("skipping undecodable piece record")
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *KV) WatchPieces(ctx context.Context, sessionID string) (session.Subscription[placement.Event], error) {
	if err := validToken(sessionID); err != nil {
		return nil, err
	}
	w, err := s.kv.Watch(ctx, pieceKey(sessionID, "*"), jetstream.UpdatesOnly(), jetstream.IgnoreDeletes())
	if err != nil {
		return nil, fmt.Errorf("watch pieces: %w", err)
	}

	sub := newKVSub[placement.Event](w)
	go sub.run(func(e jetstream.KeyValueEntry, emit func(placement.Event)) {
		if e == nil {
			return
		}
		var ev placement.Event
		if err := json.Unmarshal(e.Value(), &ev); err != nil {
			log.Warn().Err(err).Str("key", e.Key()).Msg("skipping undecodable piece update")
			return
		}
		emit(ev)
	})
	return sub, nil
}

func (s *KV) PutPlayer(ctx context.Context, sessionID string, p session.Player) error {
	if err := validToken(sessionID); err != nil {
		return err
	}
	if err := validToken(p.ID); err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal player: %w", err)
	}
	if _, err := s.kv.Put(ctx, playerKey(sessionID, p.ID), data); err != nil {
		return fmt.Errorf("put player: %w", err)
	}
	return nil
}

func (s *KV) RemovePlayer(ctx context.Context, sessionID string, playerID string) error {
	if err := s.kv.Delete(ctx, playerKey(sessionID, playerID)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete player: %w", err)
	}
	return nil
}

func (s *KV) Players(ctx context.Context, sessionID string) (session.Roster, error) {
	entries, err := s.collect(ctx, playerKey(sessionID, "*"))
	if err != nil {
		return nil, err
	}
	roster := make(session.Roster, len(entries))
	for _, e := range entries {
		var p session.Player
		if err := json.Unmarshal(e.Value(), &p); err != nil {
			log.Warn().Err(err).Str("key", e.Key()).Msg("skipping undecodable player record")
			continue
		}
		roster[p.ID] = p
	}
	return roster, nil
}

// WatchPlayers replays the current players, emits the first snapshot once the
// replay is done, then one snapshot per change.
func (s *KV) WatchPlayers(ctx context.Context, sessionID string) (session.Subscription[session.Roster], error) {
	if err := validToken(sessionID); err != nil {
		return nil, err
	}
	w, err := s.kv.Watch(ctx, playerKey(sessionID, "*"))
	if err != nil {
		return nil, fmt.Errorf("watch players: %w", err)
	}

	roster := make(session.Roster)
	replayed := false
	sub := newKVSub[session.Roster](w)
	go sub.run(func(e jetstream.KeyValueEntry, emit func(session.Roster)) {
		if e == nil {
			replayed = true
			emit(roster.Clone())
			return
		}
		switch e.Operation() {
		case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
			delete(roster, lastToken(e.Key()))
		default:
			var p session.Player
			if err := json.Unmarshal(e.Value(), &p); err != nil {
				log.Warn().Err(err).Str("key", e.Key()).Msg("skipping undecodable player update")
				return
			}
			roster[p.ID] = p
		}
		if replayed {
			emit(roster.Clone())
		}
	})
	return sub, nil
}

// collect reads the current values under a key pattern
func (s *KV) collect(ctx context.Context, pattern string) ([]jetstream.KeyValueEntry, error) {
	w, err := s.kv.Watch(ctx, pattern, jetstream.IgnoreDeletes())
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", pattern, err)
	}
	defer func() {
		if err := w.Stop(); err != nil {
			log.Warn().Err(err).Str("pattern", pattern).Msg("failed to stop watcher")
		}
	}()

	var entries []jetstream.KeyValueEntry
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case e, ok := <-w.Updates():
			if !ok || e == nil {
				return entries, nil
			}
			entries = append(entries, e)
		}
	}
}

// kvSub adapts a KeyWatcher to a typed subscription
type kvSub[T any] struct {
	w    jetstream.KeyWatcher
	ch   chan T
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
	err  error
}

func newKVSub[T any](w jetstream.KeyWatcher) *kvSub[T] {
	s := &kvSub[T]{
		w:    w,
		ch:   make(chan T, 256),
		done: make(chan struct{}),
	}
	s.wg.Add(1)
	return s
}

func (s *kvSub[T]) run(handle func(jetstream.KeyValueEntry, func(T))) {
	defer s.wg.Done()
	defer close(s.ch)

	emit := func(v T) {
		select {
		case s.ch <- v:
		case <-s.done:
		}
	}

	for {
		select {
		case <-s.done:
			return
		case e, ok := <-s.w.Updates():
			if !ok {
				return
			}
			handle(e, emit)
		}
	}
}

func (s *kvSub[T]) Updates() <-chan T {
	return s.ch
}

func (s *kvSub[T]) Stop() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.w.Stop()
		s.wg.Wait()
	})
	return s.err
}
