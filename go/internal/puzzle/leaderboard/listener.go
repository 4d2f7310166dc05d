package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

type ListenerConfig struct {
	DatabaseURL   string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel string        // Channel name to LISTEN on
	PingInterval  time.Duration // How often to check the connection
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel: "leaderboard_updates",
		PingInterval:  90 * time.Second,
	}
}

// Listener fans leaderboard notifications out to a callback with the puzzle id
// whose ranking changed.
type Listener struct {
	listener *pq.Listener
	onUpdate func(puzzleID string)
	cfg      ListenerConfig
}

func NewListener(cfg ListenerConfig, onUpdate func(puzzleID string)) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("leaderboard listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for leaderboard notifications")

	return &Listener{
		listener: l,
		onUpdate: onUpdate,
		cfg:      cfg,
	}, nil
}

func (l *Listener) Start(ctx context.Context) error {
	pingTicker := time.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("leaderboard listener shutting down")
			return l.Stop()
		case note := <-l.listener.Notify:
			if note == nil {
				// connection was re-established, notifications may have been missed
				continue
			}
			if note.Extra == "" {
				log.Warn().Msg("leaderboard notification without puzzle id")
				continue
			}
			l.onUpdate(note.Extra)
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping leaderboard listener")
			}
		}
	}
}

func (l *Listener) Stop() error {
	return l.listener.Close()
}
