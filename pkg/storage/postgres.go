package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiftregister-vg/gopad-ot/pkg/ot"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	doc_id        TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	revision      INTEGER NOT NULL,
	state         JSONB NOT NULL,
	last_modified BIGINT NOT NULL
)`

// The update only happens when the stored revision is older, so zero
// affected rows means the snapshot was stale.
const upsert = `
INSERT INTO snapshots (doc_id, kind, revision, state, last_modified)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (doc_id) DO UPDATE
SET kind = EXCLUDED.kind, revision = EXCLUDED.revision, state = EXCLUDED.state, last_modified = EXCLUDED.last_modified
WHERE snapshots.revision < EXCLUDED.revision`

// PostgresStore keeps snapshots in a single table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Save(ctx context.Context, docID string, snap *Snapshot) error {
	snap.LastModified = time.Now().UnixMilli()
	state := []byte(snap.State)
	if len(state) == 0 {
		state = []byte("null")
	}
	tag, err := s.pool.Exec(ctx, upsert, docID, snap.Kind.Name(), snap.Revision, state, snap.LastModified)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s, snapshot is %d", ErrStale, docID, snap.Revision)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, docID string) (*Snapshot, error) {
	var (
		kind  string
		state []byte
		snap  Snapshot
	)
	err := s.pool.QueryRow(ctx,
		`SELECT kind, revision, state, last_modified FROM snapshots WHERE doc_id = $1`, docID,
	).Scan(&kind, &snap.Revision, &state, &snap.LastModified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snap.Kind, err = ot.ParseType(kind); err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	snap.State = state
	return &snap, nil
}

func (s *PostgresStore) Delete(ctx context.Context, docID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM snapshots WHERE doc_id = $1`, docID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
