// Package storage persists matches and their checkpoints so a finished or
// interrupted match can be replayed.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/magefree/tcg-server-go/internal/game"
	"github.com/magefree/tcg-server-go/internal/game/mutator"
	"github.com/magefree/tcg-server-go/internal/game/rules"
	"go.uber.org/zap"
)

var (
	// ErrNotFound indicates a requested match is missing.
	ErrNotFound = errors.New("match not found")
	// ErrAlreadyExists indicates a match id is taken.
	ErrAlreadyExists = errors.New("match already exists")
)

// Drivers accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverNone     = "none"
)

// Status of a stored match.
type Status string

const (
	StatusRunning    Status = "running"
	StatusFinished   Status = "finished"
	StatusFailed     Status = "failed"
	StatusTerminated Status = "terminated"
)

// Match is the stored summary of a match.
type Match struct {
	ID          string     `json:"id"`
	Decks       [2]string  `json:"decks"`
	Status      Status     `json:"status"`
	Winner      *rules.Who `json:"winner,omitempty"`
	Error       string     `json:"error,omitempty"`
	Checkpoints int        `json:"checkpoints"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Store is implemented by every storage backend.
type Store interface {
	// CreateMatch stores a new running match with its initial snapshot as
	// produced by game.EncodeState.
	CreateMatch(ctx context.Context, m Match, initial []byte) error
	// AppendCheckpoint stores the next checkpoint of a match.
	AppendCheckpoint(ctx context.Context, matchID string, cp game.Checkpoint) error
	// FinishMatch records the outcome of a match.
	FinishMatch(ctx context.Context, matchID string, status Status, winner *rules.Who, errMsg string) error
	GetMatch(ctx context.Context, matchID string) (Match, error)
	// ListMatches returns the most recent matches first.
	ListMatches(ctx context.Context, limit int) ([]Match, error)
	// LoadLog rebuilds the match log of a stored match.
	LoadLog(ctx context.Context, matchID string) (*game.MatchLog, error)
	Close() error
}

// Open connects the backend named by driver. DriverNone returns a nil store.
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverPostgres:
		s, err := OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to postgres")
		return s, nil
	case DriverSQLite:
		s, err := OpenSQLite(dsn)
		if err != nil {
			return nil, err
		}
		logger.Info("opened sqlite store", zap.String("path", dsn))
		return s, nil
	case DriverNone, "":
		logger.Info("match storage disabled")
		return nil, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", driver)
}

// CheckpointHook returns a game.Options OnPause hook appending the latest
// checkpoint of log to the store.
func CheckpointHook(s Store, matchID string, log func() *game.MatchLog) func(ctx context.Context, p mutator.Pause) error {
	return func(ctx context.Context, _ mutator.Pause) error {
		cp, ok := log().Last()
		if !ok {
			return nil
		}
		if err := s.AppendCheckpoint(ctx, matchID, cp); err != nil {
			return fmt.Errorf("store checkpoint %d: %w", cp.Seq, err)
		}
		return nil
	}
}

func validateMatch(m Match, initial []byte) error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("match id is required")
	}
	if len(initial) == 0 {
		return fmt.Errorf("initial state is required")
	}
	return nil
}

// encodeMutations turns the encoded mutations of a checkpoint into one JSON
// array.
func encodeMutations(muts [][]byte) ([]byte, error) {
	raw := make([]json.RawMessage, len(muts))
	for i, m := range muts {
		raw[i] = m
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode mutations: %w", err)
	}
	return data, nil
}

func decodeMutations(data []byte) ([][]byte, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode mutations: %w", err)
	}
	muts := make([][]byte, len(raw))
	for i, m := range raw {
		muts[i] = []byte(m)
	}
	return muts, nil
}

func winnerValue(w *rules.Who) any {
	if w == nil {
		return nil
	}
	return int(*w)
}

func winnerFrom(v *int64) *rules.Who {
	if v == nil {
		return nil
	}
	w := rules.Who(*v)
	return &w
}
