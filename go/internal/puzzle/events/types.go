package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a session lifecycle event. It is the last subject token.
type EventType string

const (
	EventTypeSessionCreated  EventType = "SessionCreated"
	EventTypePlayerJoined    EventType = "PlayerJoined"
	EventTypePuzzleCompleted EventType = "PuzzleCompleted"
)

// Event is the envelope published on the PUZZLE_EVENTS stream
type Event struct {
	ID        uuid.UUID       `json:"eventId"`
	Type      EventType       `json:"eventType"`
	SessionID string          `json:"sessionId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// MsgID is the JetStream dedupe key. Every gateway replica observing the same
// session lifecycle transition produces the same id.
func (e Event) MsgID() string {
	if e.Type == EventTypePlayerJoined {
		return e.ID.String()
	}
	return fmt.Sprintf("%s:%s", e.SessionID, e.Type)
}

// PuzzleCompletedPayload is the payload of EventTypePuzzleCompleted
type PuzzleCompletedPayload struct {
	PuzzleID    string    `json:"puzzleId"`
	Difficulty  int       `json:"difficulty"`
	HostName    string    `json:"hostName"`
	Players     []string  `json:"players"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
}

// SessionCreatedPayload is the payload of EventTypeSessionCreated
type SessionCreatedPayload struct {
	PuzzleID   string `json:"puzzleId"`
	Difficulty int    `json:"difficulty"`
	HostID     string `json:"hostId"`
}

// PlayerJoinedPayload is the payload of EventTypePlayerJoined
type PlayerJoinedPayload struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

// NewEvent builds an envelope around a JSON payload
func NewEvent(t EventType, sessionID string, at time.Time, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Event{
		ID:        uuid.New(),
		Type:      t,
		SessionID: sessionID,
		Timestamp: at.UTC(),
		Payload:   data,
	}, nil
}
