package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/peacprotocol/peac/core/pkg/dispute"

	_ "github.com/lib/pq"
)

// PostgresStore persists attestations in PostgreSQL. The table is expected
// to exist; see PostgresSchema.
type PostgresStore struct {
	db *sql.DB
}

// PostgresSchema creates the disputes table.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS disputes (
	dispute_id TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	revision TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	doc JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS disputes_state ON disputes (state);`

// OpenPostgres opens dsn with lib/pq and applies PostgresSchema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, PostgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate postgres: %w", err)
	}
	return NewPostgresStore(db), nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) Put(ctx context.Context, att *dispute.Attestation) (err error) {
	ctx, span := startSpan(ctx, s.Name(), "Put")
	defer func() { endSpan(span, err) }()

	rec, err := encode(att)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("dispute_id", rec.ID))

	query := `
		INSERT INTO disputes (dispute_id, state, revision, updated_at, doc)
		VALUES ($1, $2, $3, NOW(), $4)
		ON CONFLICT (dispute_id) DO UPDATE SET
			state = EXCLUDED.state,
			revision = EXCLUDED.revision,
			updated_at = EXCLUDED.updated_at,
			doc = EXCLUDED.doc
	`
	if _, err = s.db.ExecContext(ctx, query, rec.ID, string(rec.State), rec.Revision, string(rec.Doc)); err != nil {
		return fmt.Errorf("failed to persist dispute: %w", err)
	}
	return nil
}

func (s *PostgresStore) Swap(ctx context.Context, prev, next *dispute.Attestation) (err error) {
	ctx, span := startSpan(ctx, s.Name(), "Swap")
	defer func() { endSpan(span, err) }()

	rec, want, err := encodeSwap(prev, next)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("dispute_id", rec.ID))

	query := `
		UPDATE disputes SET state = $1, revision = $2, updated_at = NOW(), doc = $3
		WHERE dispute_id = $4 AND revision = $5
	`
	res, err := s.db.ExecContext(ctx, query, string(rec.State), rec.Revision, string(rec.Doc), rec.ID, want)
	if err != nil {
		return fmt.Errorf("failed to persist dispute: %w", err)
	}
	return checkSwapped(res)
}

func (s *PostgresStore) Get(ctx context.Context, disputeID string) (att *dispute.Attestation, err error) {
	ctx, span := startSpan(ctx, s.Name(), "Get", attribute.String("dispute_id", disputeID))
	defer func() { endSpan(span, err) }()

	var doc []byte
	err = s.db.QueryRowContext(ctx, "SELECT doc FROM disputes WHERE dispute_id = $1", disputeID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dispute: %w", err)
	}
	return decode(doc)
}

func (s *PostgresStore) List(ctx context.Context, state dispute.State, limit int) (out []*dispute.Attestation, err error) {
	ctx, span := startSpan(ctx, s.Name(), "List", attribute.String("state", string(state)))
	defer func() { endSpan(span, err) }()

	var rows *sql.Rows
	if state == "" {
		rows, err = s.db.QueryContext(ctx, "SELECT doc FROM disputes ORDER BY dispute_id LIMIT $1", listLimit(limit))
	} else {
		rows, err = s.db.QueryContext(ctx, "SELECT doc FROM disputes WHERE state = $1 ORDER BY dispute_id LIMIT $2", string(state), listLimit(limit))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list disputes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanDocs(rows)
}
