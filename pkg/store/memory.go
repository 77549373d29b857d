package store

import (
	"context"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/peacprotocol/peac/core/pkg/dispute"
)

// MemoryStore keeps attestations in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]record)}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Put(ctx context.Context, att *dispute.Attestation) (err error) {
	_, span := startSpan(ctx, s.Name(), "Put")
	defer func() { endSpan(span, err) }()

	rec, err := encode(att)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("dispute_id", rec.ID))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

func (s *MemoryStore) Swap(ctx context.Context, prev, next *dispute.Attestation) (err error) {
	_, span := startSpan(ctx, s.Name(), "Swap")
	defer func() { endSpan(span, err) }()

	rec, want, err := encodeSwap(prev, next)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("dispute_id", rec.ID))

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.records[rec.ID]; !ok || cur.Revision != want {
		return ErrConflict
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, disputeID string) (att *dispute.Attestation, err error) {
	_, span := startSpan(ctx, s.Name(), "Get", attribute.String("dispute_id", disputeID))
	defer func() { endSpan(span, err) }()

	s.mu.RLock()
	rec, ok := s.records[disputeID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(rec.Doc)
}

func (s *MemoryStore) List(ctx context.Context, state dispute.State, limit int) (out []*dispute.Attestation, err error) {
	_, span := startSpan(ctx, s.Name(), "List", attribute.String("state", string(state)))
	defer func() { endSpan(span, err) }()

	s.mu.RLock()
	ids := make([]string, 0, len(s.records))
	for id, rec := range s.records {
		if state == "" || rec.State == state {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if n := listLimit(limit); len(ids) > n {
		ids = ids[:n]
	}
	docs := make([][]byte, len(ids))
	for i, id := range ids {
		docs[i] = s.records[id].Doc
	}
	s.mu.RUnlock()

	for _, doc := range docs {
		att, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, att)
	}
	return out, nil
}
