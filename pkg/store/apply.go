package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/peacprotocol/peac/core/pkg/dispute"
)

// Transitioner loads a dispute, applies a state transition and persists the
// result with Swap, so of two transitions racing from the same attestation
// only one is stored. When Journal is set every persisted transition is also
// appended to it.
type Transitioner struct {
	Store   DisputeStore
	Machine *dispute.Machine
	Journal *Journal
	Logger  *slog.Logger
}

// NewTransitioner returns a Transitioner using the wall clock and the
// default logger.
func NewTransitioner(s DisputeStore) *Transitioner {
	return &Transitioner{Store: s, Machine: dispute.NewMachine(), Logger: slog.Default()}
}

// Apply transitions the stored dispute disputeID to target.
func (t *Transitioner) Apply(ctx context.Context, disputeID string, target dispute.State, reason string, resolution *dispute.Resolution) (*dispute.Attestation, error) {
	log := t.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("dispute_id", disputeID, "to", string(target), "backend", t.Store.Name())

	cur, err := t.Store.Get(ctx, disputeID)
	if err != nil {
		log.ErrorContext(ctx, "failed to load dispute", "error", err)
		return nil, err
	}
	from := cur.Evidence.State
	log = log.With("from", string(from))

	next, err := t.Machine.Transition(cur, target, reason, resolution)
	if err != nil {
		log.WarnContext(ctx, "transition rejected", "error", err)
		return nil, err
	}
	if err := t.Store.Swap(ctx, cur, next); err != nil {
		if errors.Is(err, ErrConflict) {
			log.WarnContext(ctx, "transition lost a concurrent update", "error", err)
			return nil, err
		}
		log.ErrorContext(ctx, "failed to persist dispute", "error", err)
		return nil, fmt.Errorf("persist transition: %w", err)
	}
	if t.Journal != nil {
		if _, err := t.Journal.Append(from, next); err != nil {
			log.ErrorContext(ctx, "failed to journal transition", "error", err)
			return nil, err
		}
	}
	log.InfoContext(ctx, "dispute transitioned")
	return next, nil
}

// ApplyTransition is Apply with a default Transitioner over s.
func ApplyTransition(ctx context.Context, s DisputeStore, disputeID string, target dispute.State, reason string, resolution *dispute.Resolution) (*dispute.Attestation, error) {
	return NewTransitioner(s).Apply(ctx, disputeID, target, reason, resolution)
}

// Open returns the backend named by driver.
func Open(ctx context.Context, driver, dsn string) (DisputeStore, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return OpenSQLite(dsn)
	case "postgres":
		return OpenPostgres(ctx, dsn)
	case "redis":
		return NewRedisStore(dsn)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
}
