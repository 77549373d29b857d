package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/peacprotocol/peac/core/pkg/dispute"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists attestations in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens dsn with the modernc driver and migrates the schema.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	s, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{`
	CREATE TABLE IF NOT EXISTS disputes (
		dispute_id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		revision TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		doc TEXT NOT NULL
	);`,
		`CREATE INDEX IF NOT EXISTS disputes_state ON disputes (state);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(context.Background(), q); err != nil {
			return fmt.Errorf("store: migrate sqlite: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Put(ctx context.Context, att *dispute.Attestation) (err error) {
	ctx, span := startSpan(ctx, s.Name(), "Put")
	defer func() { endSpan(span, err) }()

	rec, err := encode(att)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("dispute_id", rec.ID))

	query := `INSERT INTO disputes (dispute_id, state, revision, updated_at, doc) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(dispute_id) DO UPDATE SET
			state = excluded.state,
			revision = excluded.revision,
			updated_at = excluded.updated_at,
			doc = excluded.doc`
	_, err = s.db.ExecContext(ctx, query, rec.ID, string(rec.State), rec.Revision, time.Now().UTC().Format(time.RFC3339Nano), string(rec.Doc))
	if err != nil {
		return fmt.Errorf("failed to persist dispute: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Swap(ctx context.Context, prev, next *dispute.Attestation) (err error) {
	ctx, span := startSpan(ctx, s.Name(), "Swap")
	defer func() { endSpan(span, err) }()

	rec, want, err := encodeSwap(prev, next)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("dispute_id", rec.ID))

	query := `UPDATE disputes SET state = ?, revision = ?, updated_at = ?, doc = ?
		WHERE dispute_id = ? AND revision = ?`
	res, err := s.db.ExecContext(ctx, query, string(rec.State), rec.Revision, time.Now().UTC().Format(time.RFC3339Nano), string(rec.Doc), rec.ID, want)
	if err != nil {
		return fmt.Errorf("failed to persist dispute: %w", err)
	}
	return checkSwapped(res)
}

func checkSwapped(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to persist dispute: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, disputeID string) (att *dispute.Attestation, err error) {
	ctx, span := startSpan(ctx, s.Name(), "Get", attribute.String("dispute_id", disputeID))
	defer func() { endSpan(span, err) }()

	var doc string
	err = s.db.QueryRowContext(ctx, "SELECT doc FROM disputes WHERE dispute_id = ?", disputeID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dispute: %w", err)
	}
	return decode([]byte(doc))
}

func (s *SQLiteStore) List(ctx context.Context, state dispute.State, limit int) (out []*dispute.Attestation, err error) {
	ctx, span := startSpan(ctx, s.Name(), "List", attribute.String("state", string(state)))
	defer func() { endSpan(span, err) }()

	var rows *sql.Rows
	if state == "" {
		rows, err = s.db.QueryContext(ctx, "SELECT doc FROM disputes ORDER BY dispute_id LIMIT ?", listLimit(limit))
	} else {
		rows, err = s.db.QueryContext(ctx, "SELECT doc FROM disputes WHERE state = ? ORDER BY dispute_id LIMIT ?", string(state), listLimit(limit))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list disputes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanDocs(rows)
}

func scanDocs(rows *sql.Rows) ([]*dispute.Attestation, error) {
	var out []*dispute.Attestation
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		att, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, att)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
