package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peacprotocol/peac/core/pkg/canonicalize"
	"github.com/peacprotocol/peac/core/pkg/dispute"
)

var ErrChainBroken = errors.New("store: journal hash chain is broken")

// Genesis is the previous hash of the first journal entry.
const Genesis = "genesis"

// JournalEntry records one applied dispute transition.
type JournalEntry struct {
	EntryID           string        `json:"entry_id"`
	Sequence          uint64        `json:"sequence"`
	Timestamp         time.Time     `json:"timestamp"`
	DisputeID         string        `json:"dispute_id"`
	From              dispute.State `json:"from"`
	To                dispute.State `json:"to"`
	Reason            string        `json:"reason,omitempty"`
	AttestationDigest string        `json:"attestation_digest"`
	PreviousHash      string        `json:"previous_hash"`
	EntryHash         string        `json:"entry_hash"`
}

// Journal is an append-only, hash-chained log of dispute transitions.
type Journal struct {
	mu        sync.RWMutex
	entries   []*JournalEntry
	chainHead string
	clock     func() time.Time
}

func NewJournal() *Journal {
	return &Journal{chainHead: Genesis, clock: time.Now}
}

// Append records the transition that produced att.
func (j *Journal) Append(from dispute.State, att *dispute.Attestation) (*JournalEntry, error) {
	digest, err := canonicalize.Digest(att)
	if err != nil {
		return nil, fmt.Errorf("failed to digest attestation: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	entry := &JournalEntry{
		EntryID:           uuid.New().String(),
		Sequence:          uint64(len(j.entries)) + 1,
		Timestamp:         j.clock().UTC(),
		DisputeID:         att.Evidence.DisputeID,
		From:              from,
		To:                att.Evidence.State,
		Reason:            att.Evidence.StateReason,
		AttestationDigest: digest,
		PreviousHash:      j.chainHead,
	}
	entry.EntryHash, err = entryHash(entry)
	if err != nil {
		return nil, err
	}
	j.entries = append(j.entries, entry)
	j.chainHead = entry.EntryHash
	return entry, nil
}

// entryHash covers every field except EntryID and EntryHash.
func entryHash(e *JournalEntry) (string, error) {
	return canonicalize.Digest(map[string]any{
		"sequence":           e.Sequence,
		"timestamp":          e.Timestamp.Format(time.RFC3339Nano),
		"dispute_id":         e.DisputeID,
		"from":               e.From,
		"to":                 e.To,
		"reason":             e.Reason,
		"attestation_digest": e.AttestationDigest,
		"previous_hash":      e.PreviousHash,
	})
}

// ChainHead returns the hash of the latest entry.
func (j *Journal) ChainHead() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.chainHead
}

// History returns the entries for one dispute, oldest first.
func (j *Journal) History(disputeID string) []JournalEntry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []JournalEntry
	for _, e := range j.entries {
		if e.DisputeID == disputeID {
			out = append(out, *e)
		}
	}
	return out
}

// Len returns the number of entries.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

// VerifyChain recomputes every entry hash and link.
func (j *Journal) VerifyChain() error {
	j.mu.RLock()
	defer j.mu.RUnlock()

	prev := Genesis
	for i, e := range j.entries {
		if e.PreviousHash != prev {
			return fmt.Errorf("%w: entry %d links to %s, want %s", ErrChainBroken, i+1, e.PreviousHash, prev)
		}
		h, err := entryHash(e)
		if err != nil {
			return err
		}
		if h != e.EntryHash {
			return fmt.Errorf("%w: entry %d hash mismatch", ErrChainBroken, i+1)
		}
		prev = e.EntryHash
	}
	return nil
}
