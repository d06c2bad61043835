package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/magefree/tcg-server-go/internal/game"
	"github.com/magefree/tcg-server-go/internal/game/rules"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS matches (
	id          TEXT PRIMARY KEY,
	deck0       TEXT NOT NULL,
	deck1       TEXT NOT NULL,
	initial     BYTEA NOT NULL,
	status      TEXT NOT NULL,
	winner      SMALLINT,
	error       TEXT NOT NULL DEFAULT '',
	checkpoints INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS checkpoints (
	match_id   TEXT NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
	seq        INTEGER NOT NULL,
	phase      TEXT NOT NULL,
	round      INTEGER NOT NULL,
	can_resume BOOLEAN NOT NULL,
	mutations  JSONB NOT NULL,
	checksum   TEXT NOT NULL,
	PRIMARY KEY (match_id, seq)
);
CREATE INDEX IF NOT EXISTS matches_created_at ON matches (created_at DESC);
`

const pgUniqueViolation = "23505"

// PostgresStore keeps matches in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects to dsn and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresStore) CreateMatch(ctx context.Context, m Match, initial []byte) error {
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
	_, err := s.pool.Exec(ctx,
		`INSERT INTO matches (id, deck0, deck1, initial, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		m.ID, m.Decks[0], m.Decks[1], initial, string(status), createdAt.UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create match: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendCheckpoint(ctx context.Context, matchID string, cp game.Checkpoint) error {
	muts, err := encodeMutations(cp.Mutations)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE matches SET checkpoints = checkpoints + 1, updated_at = now()
			  WHERE id = $1 AND checkpoints = $2`,
			matchID, cp.Seq,
		)
		if err != nil {
			return fmt.Errorf("bump checkpoint count: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var count int
			err := tx.QueryRow(ctx, `SELECT checkpoints FROM matches WHERE id = $1`, matchID).Scan(&count)
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("read checkpoint count: %w", err)
			}
			return fmt.Errorf("checkpoint %d out of sequence, expected %d", cp.Seq, count)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO checkpoints (match_id, seq, phase, round, can_resume, mutations, checksum)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			matchID, cp.Seq, cp.Phase.String(), cp.Round, cp.CanResume, string(muts), cp.Checksum,
		)
		if err != nil {
			return fmt.Errorf("insert checkpoint: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) FinishMatch(ctx context.Context, matchID string, status Status, winner *rules.Who, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE matches SET status = $1, winner = $2, error = $3, updated_at = now() WHERE id = $4`,
		string(status), winnerValue(winner), errMsg, matchID,
	)
	if err != nil {
		return fmt.Errorf("finish match: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const postgresMatchColumns = `id, deck0, deck1, status, winner, error, checkpoints, created_at, updated_at`

func scanPostgresMatch(row pgx.Row) (Match, error) {
	var m Match
	var status string
	var winner *int64
	if err := row.Scan(&m.ID, &m.Decks[0], &m.Decks[1], &status, &winner, &m.Error, &m.Checkpoints, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return Match{}, err
	}
	m.Status = Status(status)
	m.Winner = winnerFrom(winner)
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return m, nil
}

func (s *PostgresStore) GetMatch(ctx context.Context, matchID string) (Match, error) {
	m, err := scanPostgresMatch(s.pool.QueryRow(ctx, `SELECT `+postgresMatchColumns+` FROM matches WHERE id = $1`, matchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Match{}, ErrNotFound
		}
		return Match{}, fmt.Errorf("get match: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) ListMatches(ctx context.Context, limit int) ([]Match, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+postgresMatchColumns+` FROM matches ORDER BY created_at DESC, id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		m, err := scanPostgresMatch(rows)
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

func (s *PostgresStore) LoadLog(ctx context.Context, matchID string) (*game.MatchLog, error) {
	var initial []byte
	err := s.pool.QueryRow(ctx, `SELECT initial FROM matches WHERE id = $1`, matchID).Scan(&initial)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load initial state: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT seq, phase, round, can_resume, mutations::text, checksum
		   FROM checkpoints WHERE match_id = $1 ORDER BY seq ASC`, matchID)
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
