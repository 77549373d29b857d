// Package store persists dispute attestations.
//
// Every backend stores the attestation as JSON keyed by dispute id, along with
// its current state for filtering. Attestations are validated before they are
// written, so a backend never holds a document that fails the dispute checks.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/peacprotocol/peac/core/pkg/canonicalize"
	"github.com/peacprotocol/peac/core/pkg/dispute"
)

var (
	ErrNotFound = errors.New("store: dispute not found")
	// ErrConflict is returned by Swap when the stored attestation is no
	// longer the one the caller read.
	ErrConflict = errors.New("store: dispute changed concurrently")
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 100

// DisputeStore is the persistence contract shared by all backends.
type DisputeStore interface {
	// Name identifies the backend in logs and spans.
	Name() string
	// Put validates att and inserts or replaces it.
	Put(ctx context.Context, att *dispute.Attestation) error
	// Swap replaces prev with next only if the stored attestation is still
	// prev, and returns ErrConflict otherwise.
	Swap(ctx context.Context, prev, next *dispute.Attestation) error
	// Get returns ErrNotFound when no dispute has the id.
	Get(ctx context.Context, disputeID string) (*dispute.Attestation, error)
	// List returns disputes ordered by id. An empty state matches all.
	List(ctx context.Context, state dispute.State, limit int) ([]*dispute.Attestation, error)
	io.Closer
}

var tracer = otel.Tracer("github.com/peacprotocol/peac/core/pkg/store")

func startSpan(ctx context.Context, backend, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("store.backend", backend))
	return tracer.Start(ctx, "store."+op, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	span.End()
}

// record is the row form of an attestation. Revision is the canonical digest
// of Doc and guards Swap.
type record struct {
	ID       string
	State    dispute.State
	Revision string
	Doc      []byte
}

func encode(att *dispute.Attestation) (record, error) {
	if att == nil {
		return record{}, fmt.Errorf("store: nil attestation")
	}
	checked, err := dispute.ValidateAttestation(att)
	if err != nil {
		return record{}, fmt.Errorf("store: refusing invalid attestation: %w", err)
	}
	doc, err := json.Marshal(checked)
	if err != nil {
		return record{}, fmt.Errorf("store: marshal attestation: %w", err)
	}
	rev, err := revisionOf(doc)
	if err != nil {
		return record{}, err
	}
	return record{ID: checked.Evidence.DisputeID, State: checked.Evidence.State, Revision: rev, Doc: doc}, nil
}

// encodeSwap encodes next and the revision prev must still have.
func encodeSwap(prev, next *dispute.Attestation) (record, string, error) {
	if prev == nil {
		return record{}, "", fmt.Errorf("store: nil previous attestation")
	}
	rec, err := encode(next)
	if err != nil {
		return record{}, "", err
	}
	if prev.Evidence.DisputeID != rec.ID {
		return record{}, "", fmt.Errorf("store: swap across disputes %s and %s", prev.Evidence.DisputeID, rec.ID)
	}
	doc, err := json.Marshal(prev)
	if err != nil {
		return record{}, "", fmt.Errorf("store: marshal attestation: %w", err)
	}
	want, err := revisionOf(doc)
	if err != nil {
		return record{}, "", err
	}
	return rec, want, nil
}

func revisionOf(doc []byte) (string, error) {
	canon, err := canonicalize.Transform(doc)
	if err != nil {
		return "", fmt.Errorf("store: canonicalize attestation: %w", err)
	}
	return canonicalize.DigestPrefix + canonicalize.HashBytes(canon), nil
}

func decode(doc []byte) (*dispute.Attestation, error) {
	var att dispute.Attestation
	if err := json.Unmarshal(doc, &att); err != nil {
		return nil, fmt.Errorf("store: corrupt attestation: %w", err)
	}
	return &att, nil
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
