package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/piece"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/placement"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/session"
)

// Message is the envelope for everything the gateway pushes to a browser
type Message struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// MessageType represents the type of server message
type MessageType string

const (
	MessageSnapshot           MessageType = "Snapshot"
	MessagePieceMoved         MessageType = "PieceMoved"
	MessagePiecePlaced        MessageType = "PiecePlaced"
	MessagePlayerJoined       MessageType = "PlayerJoined"
	MessagePlayerLeft         MessageType = "PlayerLeft"
	MessagePuzzleCompleted    MessageType = "PuzzleCompleted"
	MessageLeaderboardUpdated MessageType = "LeaderboardUpdated"
	MessageError              MessageType = "Error"
)

// SnapshotPayload is sent once to every new connection
type SnapshotPayload struct {
	Record  session.Record    `json:"record"`
	Pieces  []placement.Event `json:"pieces"`
	Players []session.Player  `json:"players"`
	Correct int               `json:"correct"`
}

type PiecePlacedPayload struct {
	PieceID string `json:"pieceId"`
}

type PuzzleCompletedPayload struct {
	PuzzleID    string    `json:"puzzleId"`
	Difficulty  int       `json:"difficulty"`
	CompletedAt time.Time `json:"completedAt"`
}

type LeaderboardUpdatedPayload struct {
	PuzzleID string `json:"puzzleId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func newMessage(t MessageType, sessionID string, at time.Time, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return &Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      t,
		Timestamp: at.UTC(),
		Data:      data,
	}, nil
}

// ClientMessageType is the discriminator of browser messages
type ClientMessageType string

const (
	ClientJoin  ClientMessageType = "join"
	ClientPiece ClientMessageType = "piece"
)

// ClientMessage is a message received from a browser. Join carries name and
// color; piece carries a placement event.
type ClientMessage struct {
	Type      ClientMessageType `json:"type"`
	Name      string            `json:"name,omitempty"`
	Color     string            `json:"color,omitempty"`
	PieceID   string            `json:"pieceId,omitempty"`
	Slot      *piece.Slot       `json:"slot,omitempty"`
	Rotation  int               `json:"rotation,omitempty"`
	Timestamp int64             `json:"timestamp,omitempty"`
}

// ParseClientMessage decodes and validates a browser message
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return ClientMessage{}, fmt.Errorf("invalid client message: %w", err)
	}
	switch m.Type {
	case ClientJoin:
		if m.Name == "" {
			return ClientMessage{}, errors.New("join requires a name")
		}
	case ClientPiece:
		if m.PieceID == "" || m.Slot == nil {
			return ClientMessage{}, errors.New("piece requires pieceId and slot")
		}
	default:
		return ClientMessage{}, fmt.Errorf("unknown client message type %q", m.Type)
	}
	return m, nil
}

// Event converts a piece message to a placement event
func (m ClientMessage) Event() placement.Event {
	ev := placement.Event{PieceID: m.PieceID, Rotation: m.Rotation, Timestamp: m.Timestamp}
	if m.Slot != nil {
		ev.Slot = *m.Slot
	}
	return ev
}
