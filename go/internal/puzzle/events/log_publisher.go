package events

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogPublisher logs events instead of sending them. Used when no broker is configured.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	log.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", string(event.Type)).
		Str("session_id", event.SessionID).
		Msg("publishing event")
	return nil
}
