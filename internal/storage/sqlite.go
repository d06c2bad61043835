package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/magefree/tcg-server-go/internal/game"
	"github.com/magefree/tcg-server-go/internal/game/rules"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS matches (
	id          TEXT PRIMARY KEY,
	deck0       TEXT NOT NULL,
	deck1       TEXT NOT NULL,
	initial     BLOB NOT NULL,
	status      TEXT NOT NULL,
	winner      INTEGER,
	error       TEXT NOT NULL DEFAULT '',
	checkpoints INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS checkpoints (
	match_id   TEXT NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
	seq        INTEGER NOT NULL,
	phase      TEXT NOT NULL,
	round      INTEGER NOT NULL,
	can_resume INTEGER NOT NULL,
	mutations  TEXT NOT NULL,
	checksum   TEXT NOT NULL,
	PRIMARY KEY (match_id, seq)
);
CREATE INDEX IF NOT EXISTS matches_created_at ON matches (created_at DESC);
`

// SQLiteStore keeps matches in a SQLite file.
type SQLiteStore struct {
	sqlDB *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE
}

func (s *SQLiteStore) CreateMatch(ctx context.Context, m Match, initial []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateMatch(m, initial); err != nil {
		return err
	}
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	status := m.Status
	if status == "" {
		status = StatusRunning
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO matches (id, deck0, deck1, initial, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Decks[0], m.Decks[1], initial, string(status), toMillis(createdAt), toMillis(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create match: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendCheckpoint(ctx context.Context, matchID string, cp game.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	muts, err := encodeMutations(cp.Mutations)
	if err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE matches SET checkpoints = checkpoints + 1, updated_at = ?
		  WHERE id = ? AND checkpoints = ?`,
		toMillis(time.Now()), matchID, cp.Seq,
	)
	if err != nil {
		return fmt.Errorf("bump checkpoint count: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("bump checkpoint count: %w", err)
	} else if n == 0 {
		return s.checkpointConflict(ctx, tx, matchID, cp.Seq)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO checkpoints (match_id, seq, phase, round, can_resume, mutations, checksum)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		matchID, cp.Seq, cp.Phase.String(), cp.Round, cp.CanResume, string(muts), cp.Checksum,
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) checkpointConflict(ctx context.Context, tx *sql.Tx, matchID string, seq int) error {
	var count int
	err := tx.QueryRowContext(ctx, `SELECT checkpoints FROM matches WHERE id = ?`, matchID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read checkpoint count: %w", err)
	}
	return fmt.Errorf("checkpoint %d out of sequence, expected %d", seq, count)
}

func (s *SQLiteStore) FinishMatch(ctx context.Context, matchID string, status Status, winner *rules.Who, errMsg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE matches SET status = ?, winner = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), winnerValue(winner), errMsg, toMillis(time.Now()), matchID,
	)
	if err != nil {
		return fmt.Errorf("finish match: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish match: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const sqliteMatchColumns = `id, deck0, deck1, status, winner, error, checkpoints, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMatch(row rowScanner) (Match, error) {
	var m Match
	var status string
	var winner *int64
	var createdAt, updatedAt int64
	if err := row.Scan(&m.ID, &m.Decks[0], &m.Decks[1], &status, &winner, &m.Error, &m.Checkpoints, &createdAt, &updatedAt); err != nil {
		return Match{}, err
	}
	m.Status = Status(status)
	m.Winner = winnerFrom(winner)
	m.CreatedAt = fromMillis(createdAt)
	m.UpdatedAt = fromMillis(updatedAt)
	return m, nil
}

func (s *SQLiteStore) GetMatch(ctx context.Context, matchID string) (Match, error) {
	if err := ctx.Err(); err != nil {
		return Match{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+sqliteMatchColumns+` FROM matches WHERE id = ?`, matchID)
	m, err := scanSQLiteMatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Match{}, ErrNotFound
		}
		return Match{}, fmt.Errorf("get match: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) ListMatches(ctx context.Context, limit int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+sqliteMatchColumns+` FROM matches ORDER BY created_at DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		m, err := scanSQLiteMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) LoadLog(ctx context.Context, matchID string) (*game.MatchLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var initial []byte
	err := s.sqlDB.QueryRowContext(ctx, `SELECT initial FROM matches WHERE id = ?`, matchID).Scan(&initial)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load initial state: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT seq, phase, round, can_resume, mutations, checksum
		   FROM checkpoints WHERE match_id = ? ORDER BY seq ASC`, matchID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoints: %w", err)
	}
	defer rows.Close()

	var cps []game.Checkpoint
	for rows.Next() {
		var cp game.Checkpoint
		var phase, muts string
		if err := rows.Scan(&cp.Seq, &phase, &cp.Round, &cp.CanResume, &muts, &cp.Checksum); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		if cp.Phase, err = rules.ParsePhase(phase); err != nil {
			return nil, fmt.Errorf("checkpoint %d: %w", cp.Seq, err)
		}
		if cp.Mutations, err = decodeMutations([]byte(muts)); err != nil {
			return nil, fmt.Errorf("checkpoint %d: %w", cp.Seq, err)
		}
		cps = append(cps, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return game.RestoreMatchLog(matchID, initial, cps), nil
}
