package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/magefree/tcg-server-go/internal/game/rules"
	"github.com/magefree/tcg-server-go/internal/storage"
	"github.com/magefree/tcg-server-go/internal/transport"
	"go.uber.org/zap"
)

// Server is the HTTP front of a Manager.
type Server struct {
	mux      *http.ServeMux
	manager  *Manager
	upgrader websocket.Upgrader
	wsOpts   transport.WebsocketOptions
	logger   *zap.Logger
}

// NewServer creates a server with all routes. An empty allowedOrigins
// accepts any origin.
func NewServer(manager *Manager, wsOpts transport.WebsocketOptions, allowedOrigins []string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		mux:     http.NewServeMux(),
		manager: manager,
		wsOpts:  wsOpts,
		logger:  logger,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/decks", s.handleListDecks)
	s.mux.HandleFunc("GET /api/matches", s.handleListMatches)
	s.mux.HandleFunc("POST /api/matches", s.handleCreateMatch)
	s.mux.HandleFunc("GET /api/matches/{id}", s.handleGetMatch)
	s.mux.HandleFunc("DELETE /api/matches/{id}", s.handleTerminateMatch)
	s.mux.HandleFunc("GET /api/matches/{id}/ws", s.handleWebSocket)
	s.mux.HandleFunc("GET /api/replays", s.handleListReplays)
	s.mux.HandleFunc("GET /api/replays/{id}", s.handleGetReplay)
	s.mux.HandleFunc("GET /api/replays/{id}/states/{seq}", s.handleReplayState)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListDecks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Registry().DeckNames())
}

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.List())
}

func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var req CreateMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Decks[0] == "" || req.Decks[1] == "" {
		writeError(w, http.StatusBadRequest, "two decks required")
		return
	}
	match, err := s.manager.CreateMatch(r.Context(), req)
	switch {
	case errors.Is(err, ErrTooManyMatches):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, match.Snapshot())
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	match, ok := s.manager.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, ErrMatchNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, match.Snapshot())
}

func (s *Server) handleTerminateMatch(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Terminate(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseSeat(v string) (rules.Who, bool) {
	switch v {
	case "0":
		return rules.Player0, true
	case "1":
		return rules.Player1, true
	}
	return 0, false
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	matchID := r.PathValue("id")
	match, ok := s.manager.Get(matchID)
	if !ok {
		writeError(w, http.StatusNotFound, ErrMatchNotFound.Error())
		return
	}
	who, ok := parseSeat(r.URL.Query().Get("seat"))
	if !ok {
		writeError(w, http.StatusBadRequest, "seat must be 0 or 1")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("match_id", matchID), zap.Error(err))
		return
	}
	logger := s.logger.With(zap.String("match_id", matchID))
	opts := s.wsOpts
	opts.OnGiveUp = func() { match.GiveUp(who) }
	io := transport.NewWebsocketIO(conn, who, opts, logger)
	defer io.Close()

	if err := s.manager.Join(matchID, who, io); err != nil {
		logger.Info("join refused", zap.Stringer("who", who), zap.Error(err))
		io.SendError(err.Error())
		return
	}

	select {
	case <-match.Done():
	case <-io.Done():
		s.manager.Leave(matchID, who, io)
	}
}

func (s *Server) replayStore(w http.ResponseWriter) (storage.Store, bool) {
	store := s.manager.Store()
	if store == nil {
		writeError(w, http.StatusNotImplemented, "match storage disabled")
		return nil, false
	}
	return store, true
}

func (s *Server) handleListReplays(w http.ResponseWriter, r *http.Request) {
	store, ok := s.replayStore(w)
	if !ok {
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	matches, err := store.ListMatches(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list stored matches", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list matches")
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) handleGetReplay(w http.ResponseWriter, r *http.Request) {
	store, ok := s.replayStore(w)
	if !ok {
		return
	}
	m, err := store.GetMatch(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("failed to read stored match", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read match")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleReplayState rebuilds the state after a stored checkpoint. Only
// finished matches are exposed with full information.
func (s *Server) handleReplayState(w http.ResponseWriter, r *http.Request) {
	store, ok := s.replayStore(w)
	if !ok {
		return
	}
	seq, err := strconv.Atoi(r.PathValue("seq"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid checkpoint")
		return
	}
	matchID := r.PathValue("id")
	m, err := store.GetMatch(r.Context(), matchID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read match")
		return
	}
	if m.Status == storage.StatusRunning {
		writeError(w, http.StatusConflict, "match still running")
		return
	}
	log, err := store.LoadLog(r.Context(), matchID)
	if err != nil {
		s.logger.Error("failed to load match log", zap.String("match_id", matchID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load match log")
		return
	}
	st, err := log.StateAt(s.manager.Registry().Data, seq)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Seq   int              `json:"seq"`
		State *rules.GameState `json:"state"`
	}{seq, st})
}
