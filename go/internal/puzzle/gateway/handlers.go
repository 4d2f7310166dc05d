package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/session"
)

const qrSize = 320

// SessionInfo is the REST view of a session
type SessionInfo struct {
	SessionID string           `json:"sessionId"`
	Record    session.Record   `json:"record"`
	Players   []session.Player `json:"players"`
	JoinURL   string           `json:"joinUrl"`
}

func (s *Service) handleGetSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sessionID := ps.ByName("id")

	rec, err := session.Join(r.Context(), s.store, sessionID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	roster, err := s.store.Players(r.Context(), sessionID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	players := make([]session.Player, 0, len(roster))
	for _, p := range roster {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].JoinedAt.Before(players[j].JoinedAt) })

	writeJSON(w, http.StatusOK, SessionInfo{
		SessionID: sessionID,
		Record:    rec,
		Players:   players,
		JoinURL:   s.rpc.JoinURL(sessionID),
	})
}

// handleSessionQR renders the join link of a session as a PNG QR code
func (s *Service) handleSessionQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sessionID := ps.ByName("id")

	if _, err := session.Join(r.Context(), s.store, sessionID); err != nil {
		writeStoreError(w, err)
		return
	}

	png, err := qrcode.Encode(s.rpc.JoinURL(sessionID), qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(png)
}

// handleSessionSocket upgrades a browser connection for a session
func (s *Service) handleSessionSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		http.Error(w, "player_id is required", http.StatusBadRequest)
		return
	}

	room, err := s.registry.Open(r.Context(), sessionID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	conn, err := s.connectionManager.UpgradeConnection(w, r, playerID, room)
	if err != nil {
		s.registry.Release(room)
		log.Error().
			Err(err).
			Str("session_id", sessionID).
			Str("player_id", playerID).
			Msg("failed to upgrade WebSocket connection")
		return
	}

	snapshot, err := room.Snapshot(r.Context())
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to build snapshot")
		return
	}
	msg, err := newMessage(MessageSnapshot, sessionID, s.clock.Now(), snapshot)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to encode snapshot")
		return
	}
	s.connectionManager.SendTo(conn, msg)
}

func (s *Service) handleConnectionStats(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.GetStats())
}

func handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	var notFound *session.SessionNotFoundError
	if errors.As(err, &notFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	log.Error().Err(err).Msg("store request failed")
	http.Error(w, "store unavailable", http.StatusServiceUnavailable)
}
