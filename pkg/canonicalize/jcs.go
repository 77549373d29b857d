// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// serialization. Its output is the exact byte string that receipts are signed
// over, so every rule here is part of the wire contract:
//
//   - object keys are sorted by UTF-16 code unit,
//   - numbers use the ECMAScript shortest round-trip form ("-0" becomes "0",
//     integral exponents such as 1e2 become 100),
//   - non-finite numbers are rejected,
//   - strings use minimal JSON escaping with no HTML escaping,
//   - array order is preserved and no insignificant whitespace is emitted.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gowebpki/jcs"
)

// DigestPrefix is the algorithm tag carried by hash-chain fields.
const DigestPrefix = "sha256:"

var (
	// ErrNonFiniteNumber is returned for NaN and ±Inf inputs.
	ErrNonFiniteNumber = errors.New("jcs: non-finite numbers are not representable")
	// ErrInvalidJSON is returned when Transform is given malformed JSON.
	ErrInvalidJSON = errors.New("jcs: invalid JSON input")
)

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// v is first marshaled with encoding/json so struct tags and omitempty are
// honored, then the intermediate document is re-serialized canonically.
func JCS(v interface{}) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		var unsupported *json.UnsupportedValueError
		if errors.As(err, &unsupported) {
			return nil, fmt.Errorf("%w: %s", ErrNonFiniteNumber, unsupported.Str)
		}
		return nil, fmt.Errorf("jcs: pre-marshal failed: %w", err)
	}
	return Transform(intermediate)
}

// Transform canonicalizes an already-encoded JSON document.
func Transform(raw []byte) ([]byte, error) {
	if !json.Valid(raw) {
		return nil, ErrInvalidJSON
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("jcs: transform failed: %w", err)
	}
	return out, nil
}

// JCSString returns the JCS canonical form as a string.
func JCSString(v interface{}) (string, error) {
	data, err := JCS(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CanonicalHash returns the SHA-256 hex digest of the canonical JSON representation of v.
func CanonicalHash(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// Digest returns the "sha256:<hex>" form of CanonicalHash, the format used by
// prev_receipt_hash and other hash-chain fields.
func Digest(v interface{}) (string, error) {
	h, err := CanonicalHash(v)
	if err != nil {
		return "", err
	}
	return DigestPrefix + h, nil
}

// HashBytes computes SHA-256 hash of raw bytes and returns hex string
func HashBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
