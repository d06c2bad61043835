package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/magefree/tcg-server-go/internal/data"
	"github.com/magefree/tcg-server-go/internal/game"
	"github.com/magefree/tcg-server-go/internal/game/rules"
	"github.com/magefree/tcg-server-go/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "matches.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetMatch(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.CreateMatch(ctx, Match{ID: "m1", Decks: [2]string{"blaze", "storm"}}, []byte(`{}`)))
	assert.ErrorIs(t, s.CreateMatch(ctx, Match{ID: "m1"}, []byte(`{}`)), ErrAlreadyExists)
	assert.Error(t, s.CreateMatch(ctx, Match{ID: " "}, []byte(`{}`)))
	assert.Error(t, s.CreateMatch(ctx, Match{ID: "m2"}, nil))

	m, err := s.GetMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, [2]string{"blaze", "storm"}, m.Decks)
	assert.Equal(t, StatusRunning, m.Status)
	assert.Nil(t, m.Winner)
	assert.False(t, m.CreatedAt.IsZero())

	_, err = s.GetMatch(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	winner := rules.Player1
	require.NoError(t, s.FinishMatch(ctx, "m1", StatusFinished, &winner, ""))
	m, err = s.GetMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, m.Status)
	require.NotNil(t, m.Winner)
	assert.Equal(t, rules.Player1, *m.Winner)

	assert.ErrorIs(t, s.FinishMatch(ctx, "missing", StatusFailed, nil, "boom"), ErrNotFound)
}

func TestListMatches(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateMatch(ctx, Match{ID: id}, []byte(`{}`)))
	}

	all, err := s.ListMatches(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	two, err := s.ListMatches(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)

	_, err = s.ListMatches(ctx, 0)
	assert.Error(t, err)
}

func TestCheckpointsMustBeInSequence(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()
	require.NoError(t, s.CreateMatch(ctx, Match{ID: "m"}, []byte(`{}`)))

	cp := game.Checkpoint{Seq: 0, Phase: rules.PhaseInitHands, Checksum: "x"}
	require.NoError(t, s.AppendCheckpoint(ctx, "m", cp))
	assert.ErrorContains(t, s.AppendCheckpoint(ctx, "m", cp), "out of sequence")
	assert.ErrorIs(t, s.AppendCheckpoint(ctx, "missing", cp), ErrNotFound)

	cp.Seq = 1
	cp.Phase = rules.PhaseRoll
	require.NoError(t, s.AppendCheckpoint(ctx, "m", cp))

	m, err := s.GetMatch(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Checkpoints)
}

func TestStoredMatchReplays(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	reg, err := data.LoadFile("../../configs/definitions.yaml", nil)
	require.NoError(t, err)
	decks := [2]rules.DeckConfig{}
	for i, name := range []string{"blaze", "storm"} {
		decks[i], err = reg.Deck(name)
		require.NoError(t, err)
	}
	config := rules.DefaultGameConfig()
	config.RandomSeed = 7
	config.MaxRoundsCount = 2
	st, err := rules.NewInitialState(reg.Data, decks, config, rules.CurrentVersionBehavior())
	require.NoError(t, err)

	initial, err := game.EncodeState(st)
	require.NoError(t, err)
	require.NoError(t, s.CreateMatch(ctx, Match{ID: "replay", Decks: [2]string{"blaze", "storm"}}, initial))

	var g *game.Game
	io := [2]game.PlayerIO{transport.NewScriptedIO(transport.Passive), transport.NewScriptedIO(transport.Passive)}
	g, err = game.New(st, io, game.Options{
		MatchID: "replay",
		Logger:  zaptest.NewLogger(t),
		OnPause: CheckpointHook(s, "replay", func() *game.MatchLog { return g.Log() }),
	})
	require.NoError(t, err)
	winner, err := g.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.FinishMatch(ctx, "replay", StatusFinished, winner, ""))

	log, err := s.LoadLog(ctx, "replay")
	require.NoError(t, err)
	assert.Equal(t, g.Log().Size(), log.Size())

	replayed, err := log.Replay(reg.Data)
	require.NoError(t, err)
	want, err := game.Checksum(g.State())
	require.NoError(t, err)
	got, err := game.Checksum(replayed)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, rules.PhaseGameEnd, replayed.Phase)

	_, err = s.LoadLog(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenDrivers(t *testing.T) {
	s, err := Open(t.Context(), DriverNone, "", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = Open(t.Context(), "SQLite", filepath.Join(t.TempDir(), "x.db"), nil)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.NoError(t, s.Close())

	_, err = Open(t.Context(), "mongo", "", nil)
	assert.ErrorContains(t, err, "unknown storage driver")
}
