// Package server hosts matches: a Manager owns the running games and an
// HTTP server exposes them to websocket clients.
package server

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/magefree/tcg-server-go/internal/data"
	"github.com/magefree/tcg-server-go/internal/game"
	"github.com/magefree/tcg-server-go/internal/game/rules"
	"github.com/magefree/tcg-server-go/internal/storage"
	"go.uber.org/zap"
)

var (
	ErrMatchNotFound  = errors.New("match not found")
	ErrSeatTaken      = errors.New("seat already taken")
	ErrTooManyMatches = errors.New("too many running matches")
	ErrNotWaiting     = errors.New("match is not waiting for players")
)

// MatchState represents the lifecycle of a hosted match.
type MatchState int

const (
	MatchStateWaiting MatchState = iota
	MatchStateRunning
	MatchStateFinished
	MatchStateFailed
	MatchStateTerminated
)

func (s MatchState) String() string {
	switch s {
	case MatchStateWaiting:
		return "WAITING"
	case MatchStateRunning:
		return "RUNNING"
	case MatchStateFinished:
		return "FINISHED"
	case MatchStateFailed:
		return "FAILED"
	case MatchStateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

func (s MatchState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *MatchState) UnmarshalText(text []byte) error {
	for c := MatchStateWaiting; c <= MatchStateTerminated; c++ {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown match state %q", text)
}

// Settings are the defaults applied to new matches.
type Settings struct {
	MaxMatches int
	Rules      rules.GameConfig
	Behavior   rules.VersionBehavior
	AlwaysOmni bool
}

// CreateMatchRequest names the decks of both sides. A zero seed picks a
// random one.
type CreateMatchRequest struct {
	Decks [2]string `json:"decks"`
	Seed  int       `json:"seed,omitempty"`
}

// MatchSnapshot captures a consistent view of a match.
type MatchSnapshot struct {
	ID         string                `json:"id"`
	Decks      [2]string             `json:"decks"`
	Seed       int                   `json:"seed"`
	State      MatchState            `json:"state"`
	Seated     [2]bool               `json:"seated"`
	Phase      string                `json:"phase,omitempty"`
	Round      int                   `json:"round,omitempty"`
	Statuses   [2]rules.PlayerStatus `json:"statuses"`
	Winner     *rules.Who            `json:"winner,omitempty"`
	Error      string                `json:"error,omitempty"`
	CreateTime time.Time             `json:"createTime"`
	StartTime  *time.Time            `json:"startTime,omitempty"`
	EndTime    *time.Time            `json:"endTime,omitempty"`
}

// Match is one hosted match.
type Match struct {
	ID         string
	Decks      [2]string
	Seed       int
	CreateTime time.Time

	mu        sync.RWMutex
	state     MatchState
	initial   *rules.GameState
	seats     [2]game.PlayerIO
	game      *game.Game
	winner    *rules.Who
	err       error
	startTime *time.Time
	endTime   *time.Time
	done      chan struct{}
}

// Done is closed once the match has ended.
func (m *Match) Done() <-chan struct{} {
	return m.done
}

// Snapshot returns the current view of the match.
func (m *Match) Snapshot() MatchSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := MatchSnapshot{
		ID:         m.ID,
		Decks:      m.Decks,
		Seed:       m.Seed,
		State:      m.state,
		Winner:     m.winner,
		CreateTime: m.CreateTime,
		StartTime:  m.startTime,
		EndTime:    m.endTime,
	}
	for i, seat := range m.seats {
		s.Seated[i] = seat != nil
	}
	if m.err != nil {
		s.Error = m.err.Error()
	}
	st := m.initial
	if m.game != nil {
		st = m.game.State()
		s.Statuses = m.game.Statuses()
	}
	if st != nil {
		s.Phase = st.Phase.String()
		s.Round = st.RoundNumber
	}
	return s
}

// GiveUp makes who lose a running match.
func (m *Match) GiveUp(who rules.Who) {
	m.mu.RLock()
	g := m.game
	m.mu.RUnlock()
	if g != nil {
		g.GiveUp(who)
	}
}

// Manager manages hosted matches.
type Manager struct {
	mu       sync.RWMutex
	matches  map[string]*Match
	registry *data.Registry
	store    storage.Store
	recorder *game.ReplayRecorder
	settings Settings
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a match manager. store and recorder may be nil.
func NewManager(registry *data.Registry, store storage.Store, recorder *game.ReplayRecorder, settings Settings, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.MaxMatches <= 0 {
		settings.MaxMatches = 100
	}
	settings.Rules = settings.Rules.WithDefaults()
	if settings.Behavior.DefaultRecreate == "" {
		settings.Behavior = rules.CurrentVersionBehavior()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		matches:  make(map[string]*Match),
		registry: registry,
		store:    store,
		recorder: recorder,
		settings: settings,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Registry returns the definitions matches are built from.
func (m *Manager) Registry() *data.Registry {
	return m.registry
}

// Store returns the match store, nil when storage is disabled.
func (m *Manager) Store() storage.Store {
	return m.store
}

// CreateMatch builds the initial state of a new match and waits for both
// seats to be taken.
func (m *Manager) CreateMatch(ctx context.Context, req CreateMatchRequest) (*Match, error) {
	var decks [2]rules.DeckConfig
	for i, name := range req.Decks {
		deck, err := m.registry.Deck(name)
		if err != nil {
			return nil, err
		}
		decks[i] = deck
	}
	seed := req.Seed
	if seed == 0 {
		seed = 1 + rand.IntN(1<<31-2)
	}
	cfg := m.settings.Rules
	cfg.RandomSeed = seed
	st, err := rules.NewInitialState(m.registry.Data, decks, cfg, m.settings.Behavior)
	if err != nil {
		return nil, fmt.Errorf("create initial state: %w", err)
	}

	match := &Match{
		ID:         uuid.New().String(),
		Decks:      req.Decks,
		Seed:       seed,
		CreateTime: time.Now(),
		state:      MatchStateWaiting,
		initial:    st,
		done:       make(chan struct{}),
	}

	m.mu.Lock()
	if m.activeLocked() >= m.settings.MaxMatches {
		m.mu.Unlock()
		return nil, ErrTooManyMatches
	}
	m.matches[match.ID] = match
	m.mu.Unlock()

	if m.store != nil {
		initial, err := game.EncodeState(st)
		if err == nil {
			err = m.store.CreateMatch(ctx, storage.Match{ID: match.ID, Decks: match.Decks, CreatedAt: match.CreateTime}, initial)
		}
		if err != nil {
			m.mu.Lock()
			delete(m.matches, match.ID)
			m.mu.Unlock()
			return nil, fmt.Errorf("store match: %w", err)
		}
	}

	m.logger.Info("created match",
		zap.String("match_id", match.ID),
		zap.Strings("decks", match.Decks[:]),
		zap.Int("random_seed", seed),
	)
	return match, nil
}

func (m *Manager) activeLocked() int {
	n := 0
	for _, match := range m.matches {
		match.mu.RLock()
		if match.state == MatchStateWaiting || match.state == MatchStateRunning {
			n++
		}
		match.mu.RUnlock()
	}
	return n
}

// Get retrieves a match by id.
func (m *Manager) Get(matchID string) (*Match, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	match, ok := m.matches[matchID]
	return match, ok
}

// List returns snapshots of every hosted match, newest first.
func (m *Manager) List() []MatchSnapshot {
	m.mu.RLock()
	matches := make([]*Match, 0, len(m.matches))
	for _, match := range m.matches {
		matches = append(matches, match)
	}
	m.mu.RUnlock()

	out := make([]MatchSnapshot, len(matches))
	for i, match := range matches {
		out[i] = match.Snapshot()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreateTime.Equal(out[j].CreateTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreateTime.After(out[j].CreateTime)
	})
	return out
}

// Join seats io as who. The match starts once both seats are taken.
func (m *Manager) Join(matchID string, who rules.Who, io game.PlayerIO) error {
	match, ok := m.Get(matchID)
	if !ok {
		return ErrMatchNotFound
	}
	if who != rules.Player0 && who != rules.Player1 {
		return fmt.Errorf("invalid seat %d", who)
	}

	match.mu.Lock()
	if match.state != MatchStateWaiting {
		match.mu.Unlock()
		return ErrNotWaiting
	}
	if match.seats[who] != nil {
		match.mu.Unlock()
		return ErrSeatTaken
	}
	match.seats[who] = io
	ready := match.seats[0] != nil && match.seats[1] != nil
	if ready {
		if err := m.startLocked(match); err != nil {
			match.seats[who] = nil
			match.mu.Unlock()
			return err
		}
	}
	match.mu.Unlock()

	m.logger.Info("player joined match",
		zap.String("match_id", matchID),
		zap.Stringer("who", who),
		zap.Bool("starting", ready),
	)
	return nil
}

// Leave frees the seat of who while the match is still waiting.
func (m *Manager) Leave(matchID string, who rules.Who, io game.PlayerIO) {
	match, ok := m.Get(matchID)
	if !ok {
		return
	}
	match.mu.Lock()
	defer match.mu.Unlock()
	if match.state == MatchStateWaiting && match.seats[who] == io {
		match.seats[who] = nil
		m.logger.Info("player left waiting match", zap.String("match_id", matchID), zap.Stringer("who", who))
	}
}

func (m *Manager) startLocked(match *Match) error {
	var g *game.Game
	opts := game.Options{
		MatchID: match.ID,
		Logger:  m.logger,
		Players: [2]game.PlayerConfig{{AlwaysOmni: m.settings.AlwaysOmni}, {AlwaysOmni: m.settings.AlwaysOmni}},
		OnIoError: func(err *rules.IoError) {
			m.logger.Info("player forfeited", zap.String("match_id", match.ID), zap.Stringer("who", err.Who))
		},
	}
	if m.store != nil {
		opts.OnPause = storage.CheckpointHook(m.store, match.ID, func() *game.MatchLog { return g.Log() })
	}
	g, err := game.New(match.initial, match.seats, opts)
	if err != nil {
		return fmt.Errorf("create game: %w", err)
	}
	if m.recorder != nil {
		m.recorder.Track(g.Log())
	}

	now := time.Now()
	match.game = g
	match.state = MatchStateRunning
	match.startTime = &now

	m.wg.Add(1)
	go m.run(match, g)
	return nil
}

func (m *Manager) run(match *Match, g *game.Game) {
	defer m.wg.Done()
	defer close(match.done)

	winner, err := g.Start(m.ctx)

	state, status := MatchStateFinished, storage.StatusFinished
	switch {
	case errors.Is(err, rules.ErrTerminated):
		state, status = MatchStateTerminated, storage.StatusTerminated
	case err != nil:
		state, status = MatchStateFailed, storage.StatusFailed
		m.logger.Error("match failed", zap.String("match_id", match.ID), zap.Error(err))
	}

	now := time.Now()
	match.mu.Lock()
	match.state = state
	match.winner = winner
	match.err = err
	match.endTime = &now
	match.mu.Unlock()

	if m.store != nil {
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(m.ctx), 5*time.Second)
		if serr := m.store.FinishMatch(ctx, match.ID, status, winner, errMsg); serr != nil {
			m.logger.Warn("failed to store match result", zap.String("match_id", match.ID), zap.Error(serr))
		}
		cancel()
	}
	if m.recorder != nil {
		if rerr := m.recorder.Save(match.ID); rerr != nil {
			m.logger.Warn("failed to save replay", zap.String("match_id", match.ID), zap.Error(rerr))
		}
	}
	m.logger.Info("match ended", zap.String("match_id", match.ID), zap.Stringer("state", state))
}

// Terminate aborts a match. Waiting matches are dropped.
func (m *Manager) Terminate(matchID string) error {
	match, ok := m.Get(matchID)
	if !ok {
		return ErrMatchNotFound
	}
	match.mu.Lock()
	g := match.game
	if g == nil && match.state == MatchStateWaiting {
		match.state = MatchStateTerminated
		now := time.Now()
		match.endTime = &now
		close(match.done)
	}
	match.mu.Unlock()

	if g != nil {
		g.Terminate()
	}
	m.logger.Info("terminated match", zap.String("match_id", matchID))
	return nil
}

// Remove drops an ended match from memory.
func (m *Manager) Remove(matchID string) error {
	match, ok := m.Get(matchID)
	if !ok {
		return ErrMatchNotFound
	}
	select {
	case <-match.done:
	default:
		return fmt.Errorf("match %s is still active", matchID)
	}
	m.mu.Lock()
	delete(m.matches, matchID)
	m.mu.Unlock()
	if m.recorder != nil {
		m.recorder.Clear(matchID)
	}
	m.logger.Info("removed match", zap.String("match_id", matchID))
	return nil
}

// Shutdown terminates every match and waits for them to end or ctx to
// expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.matches))
	for id := range m.matches {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		m.Terminate(id)
	}
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
