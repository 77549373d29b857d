package workflow

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/peacprotocol/peac/core/pkg/canonicalize"
)

const (
	leafTag = "peac:workflow:leaf:v1"
	nodeTag = "peac:workflow:node:v1"
)

// ErrNoReceipts is returned when a tree is requested over zero refs.
var ErrNoReceipts = errors.New("workflow: no receipt refs")

// ReceiptTree is a binary Merkle tree over receipt refs in workflow order.
// Odd levels are balanced by duplicating the last node.
type ReceiptTree struct {
	Refs   []string
	Levels [][]string // Levels[0] are leaf hashes, last level is the root
}

// ProofStep is one sibling on the path from a leaf to the root.
type ProofStep struct {
	Side        string `json:"side"` // "L" or "R"
	SiblingHash string `json:"sibling_hash"`
}

// InclusionProof shows that Ref is the Index-th leaf under Root.
type InclusionProof struct {
	Ref   string      `json:"ref"`
	Index int         `json:"index"`
	Root  string      `json:"root"`
	Path  []ProofStep `json:"path"`
}

// BuildReceiptTree hashes refs into a tree. Each ref must be a chain hash.
func BuildReceiptTree(refs []string) (*ReceiptTree, error) {
	if len(refs) == 0 {
		return nil, ErrNoReceipts
	}
	leaves := make([]string, len(refs))
	for i, r := range refs {
		if !IsValidHash(r) {
			return nil, fmt.Errorf("workflow: receipt_refs[%d] is not a sha256 chain hash", i)
		}
		leaves[i] = leafHash(r)
	}

	t := &ReceiptTree{Refs: append([]string(nil), refs...)}
	level := leaves
	for len(level) > 1 {
		t.Levels = append(t.Levels, level)
		level = nextLevel(level)
	}
	t.Levels = append(t.Levels, level)
	return t, nil
}

// Root returns the "sha256:<hex>" root.
func (t *ReceiptTree) Root() string {
	return canonicalize.DigestPrefix + t.Levels[len(t.Levels)-1][0]
}

// Prove builds the inclusion proof for the leaf at index.
func (t *ReceiptTree) Prove(index int) (InclusionProof, error) {
	if index < 0 || index >= len(t.Refs) {
		return InclusionProof{}, fmt.Errorf("workflow: leaf index %d out of range", index)
	}
	p := InclusionProof{Ref: t.Refs[index], Index: index, Root: t.Root()}
	i := index
	for _, level := range t.Levels[:len(t.Levels)-1] {
		sib := i ^ 1
		if sib >= len(level) {
			sib = i
		}
		side := "R"
		if sib < i {
			side = "L"
		}
		p.Path = append(p.Path, ProofStep{Side: side, SiblingHash: level[sib]})
		i /= 2
	}
	return p, nil
}

// VerifyInclusion recomputes the root from p and compares it with the
// trusted root. An empty root never verifies.
func VerifyInclusion(p InclusionProof, root string) bool {
	if root == "" || !strings.EqualFold(p.Root, root) {
		return false
	}
	cur := leafHash(p.Ref)
	for _, s := range p.Path {
		if s.Side == "L" {
			cur = nodeHash(s.SiblingHash, cur)
		} else {
			cur = nodeHash(cur, s.SiblingHash)
		}
	}
	return strings.EqualFold(canonicalize.DigestPrefix+cur, root)
}

// ReceiptMerkleRoot returns the tree root over refs.
func ReceiptMerkleRoot(refs []string) (string, error) {
	t, err := BuildReceiptTree(refs)
	if err != nil {
		return "", err
	}
	return t.Root(), nil
}

func nextLevel(hashes []string) []string {
	if len(hashes)%2 != 0 {
		hashes = append(hashes, hashes[len(hashes)-1])
	}
	out := make([]string, len(hashes)/2)
	for i := 0; i < len(hashes); i += 2 {
		out[i/2] = nodeHash(hashes[i], hashes[i+1])
	}
	return out
}

func leafHash(ref string) string {
	var buf bytes.Buffer
	buf.WriteString(leafTag)
	buf.WriteByte(0)
	buf.WriteString(ref)
	return canonicalize.HashBytes(buf.Bytes())
}

func nodeHash(left, right string) string {
	var buf bytes.Buffer
	buf.WriteString(nodeTag)
	buf.WriteByte(0)
	buf.Write(hexBytes(left))
	buf.Write(hexBytes(right))
	return canonicalize.HashBytes(buf.Bytes())
}

func hexBytes(s string) []byte {
	b, _ := hex.DecodeString(s)
	return b
}
