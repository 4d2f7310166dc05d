package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/events"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/imagesource"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/leaderboard"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/placement"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/session"
)

const (
	PuzzleServiceName = "jigsaw.v1.PuzzleService"

	CreateSessionProcedure = "/" + PuzzleServiceName + "/CreateSession"
	JoinSessionProcedure   = "/" + PuzzleServiceName + "/JoinSession"
	TopScoresProcedure     = "/" + PuzzleServiceName + "/TopScores"

	// MaxDifficulty bounds the grid side a client may request
	MaxDifficulty = 20
)

// Scores is the read side of the leaderboard
type Scores interface {
	TopScores(ctx context.Context, puzzleID string, difficulty, limit int) ([]leaderboard.Entry, error)
}

type CreateSessionRequest struct {
	PuzzleID   string `json:"puzzleId"`
	Difficulty int    `json:"difficulty"`
	Rotation   bool   `json:"rotation"`
}

type CreateSessionResponse struct {
	SessionID string         `json:"sessionId"`
	PlayerID  string         `json:"playerId"`
	Record    session.Record `json:"record"`
	JoinURL   string         `json:"joinUrl"`
}

type JoinSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type JoinSessionResponse struct {
	PlayerID string         `json:"playerId"`
	Record   session.Record `json:"record"`
	JoinURL  string         `json:"joinUrl"`
}

type TopScoresRequest struct {
	PuzzleID   string `json:"puzzleId"`
	Difficulty int    `json:"difficulty"`
	Limit      int    `json:"limit"`
}

type TopScoresResponse struct {
	Entries []leaderboard.Entry `json:"entries"`
}

// PuzzleService implements the session and leaderboard RPCs
type PuzzleService struct {
	store     session.Store
	resolver  imagesource.Resolver
	scores    Scores
	publisher events.Publisher
	clock     clockwork.Clock
	publicURL string
}

func NewPuzzleService(store session.Store, resolver imagesource.Resolver, scores Scores, publisher events.Publisher, clock clockwork.Clock, publicURL string) *PuzzleService {
	return &PuzzleService{
		store:     store,
		resolver:  resolver,
		scores:    scores,
		publisher: publisher,
		clock:     clock,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}
}

// JoinURL is the link a host shares with other players
func (s *PuzzleService) JoinURL(sessionID string) string {
	return s.publicURL + "/play/" + sessionID
}

// Handlers returns the connect handlers keyed by procedure path
func (s *PuzzleService) Handlers() map[string]http.Handler {
	opts := []connect.HandlerOption{connect.WithCodec(jsonCodec{})}
	return map[string]http.Handler{
		CreateSessionProcedure: connect.NewUnaryHandler(CreateSessionProcedure, s.CreateSession, opts...),
		JoinSessionProcedure:   connect.NewUnaryHandler(JoinSessionProcedure, s.JoinSession, opts...),
		TopScoresProcedure:     connect.NewUnaryHandler(TopScoresProcedure, s.TopScores, opts...),
	}
}

func (s *PuzzleService) CreateSession(ctx context.Context, req *connect.Request[CreateSessionRequest]) (*connect.Response[CreateSessionResponse], error) {
	msg := req.Msg
	if msg.PuzzleID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("puzzleId is required"))
	}
	if msg.Difficulty < 1 || msg.Difficulty > MaxDifficulty {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("difficulty out of range"))
	}

	dims, err := s.resolver.Resolve(ctx, msg.PuzzleID)
	if err != nil {
		return nil, toConnectError(err)
	}

	hostID := uuid.NewString()
	sessionID := newSessionID()
	rec := session.Record{
		PuzzleID:   msg.PuzzleID,
		HostID:     hostID,
		Difficulty: msg.Difficulty,
		Seed:       rand.Int63(),
		Image:      dims,
		Rotation:   msg.Rotation,
		CreatedAt:  s.clock.Now(),
	}
	if _, err := rec.InitialState(); err != nil {
		return nil, toConnectError(err)
	}

	rec, err = session.Bootstrap(ctx, s.store, sessionID, rec)
	if err != nil {
		return nil, toConnectError(err)
	}

	ev, err := events.NewEvent(events.EventTypeSessionCreated, sessionID, rec.CreatedAt, events.SessionCreatedPayload{
		PuzzleID:   rec.PuzzleID,
		Difficulty: rec.Difficulty,
		HostID:     hostID,
	})
	if err == nil {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to announce session")
		}
	}

	return connect.NewResponse(&CreateSessionResponse{
		SessionID: sessionID,
		PlayerID:  hostID,
		Record:    rec,
		JoinURL:   s.JoinURL(sessionID),
	}), nil
}

func (s *PuzzleService) JoinSession(ctx context.Context, req *connect.Request[JoinSessionRequest]) (*connect.Response[JoinSessionResponse], error) {
	if req.Msg.SessionID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("sessionId is required"))
	}

	rec, err := session.Join(ctx, s.store, req.Msg.SessionID)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&JoinSessionResponse{
		PlayerID: uuid.NewString(),
		Record:   rec,
		JoinURL:  s.JoinURL(req.Msg.SessionID),
	}), nil
}

func (s *PuzzleService) TopScores(ctx context.Context, req *connect.Request[TopScoresRequest]) (*connect.Response[TopScoresResponse], error) {
	if s.scores == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, errors.New("leaderboard is not configured"))
	}
	if req.Msg.PuzzleID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("puzzleId is required"))
	}
	if req.Msg.Difficulty < 1 || req.Msg.Difficulty > MaxDifficulty {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("difficulty must be between 1 and %d", MaxDifficulty))
	}

	entries, err := s.scores.TopScores(ctx, req.Msg.PuzzleID, req.Msg.Difficulty, req.Msg.Limit)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	if entries == nil {
		entries = []leaderboard.Entry{}
	}
	return connect.NewResponse(&TopScoresResponse{Entries: entries}), nil
}

// toConnectError maps domain errors onto connect codes
func toConnectError(err error) error {
	var (
		notFound  *session.SessionNotFoundError
		loadErr   *imagesource.ImageLoadError
		invalid   *placement.InvalidImageError
		syncErr   *session.SyncError
		connected *connect.Error
	)
	switch {
	case errors.As(err, &connected):
		return err
	case errors.As(err, &notFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, session.ErrSessionExists):
		return connect.NewError(connect.CodeAlreadyExists, err)
	case errors.Is(err, imagesource.ErrUnknownPuzzle):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.As(err, &loadErr):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.As(err, &invalid):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.As(err, &syncErr):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// newSessionID returns a short id that is easy to type on a phone
func newSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}
