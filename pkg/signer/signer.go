// Package signer produces and checks detached EdDSA JWS signatures over the
// canonical form of receipts and attestations.
//
// A signature has the shape <b64url header>..<b64url signature>; the payload
// segment is omitted and recomputed from the document on verification.
package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/peacprotocol/peac/core/pkg/canonicalize"
)

// MediaType is the typ header of receipt signatures.
const MediaType = "peac-receipt+jws"

var (
	ErrInvalidSignature = errors.New("signer: invalid signature")
	ErrMalformed        = errors.New("signer: malformed jws")
	ErrUnknownKey       = errors.New("signer: unknown key id")
)

// Header is the protected JWS header.
type Header struct {
	Alg string `json:"alg"`
	B64 bool   `json:"b64"`
	Kid string `json:"kid"`
	Typ string `json:"typ"`
}

// Key is an Ed25519 signing key with its id.
type Key struct {
	ID      string
	Private ed25519.PrivateKey
}

// Public returns the verification half of k.
func (k *Key) Public() ed25519.PublicKey {
	return k.Private.Public().(ed25519.PublicKey)
}

// GenerateKey creates a fresh key. An empty kid is derived from the public key.
func GenerateKey(kid string) (*Key, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	if kid == "" {
		kid = Thumbprint(pub)
	}
	return &Key{ID: kid, Private: priv}, nil
}

// Thumbprint derives a stable key id from a public key.
func Thumbprint(pub ed25519.PublicKey) string {
	return "ed25519:" + canonicalize.HashBytes(pub)[:16]
}

// Sign canonicalizes doc and signs the result.
func Sign(doc any, key *Key) (string, error) {
	payload, err := canonicalize.JCS(doc)
	if err != nil {
		return "", fmt.Errorf("signer: canonicalize payload: %w", err)
	}
	return SignCanonical(payload, key)
}

// SignCanonical signs payload bytes that are already in canonical form.
func SignCanonical(payload []byte, key *Key) (string, error) {
	if key == nil || len(key.Private) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("signer: no signing key")
	}
	hdr, err := canonicalize.JCS(Header{Alg: jwt.SigningMethodEdDSA.Alg(), B64: true, Kid: key.ID, Typ: MediaType})
	if err != nil {
		return "", err
	}
	h := base64.RawURLEncoding.EncodeToString(hdr)
	sig, err := jwt.SigningMethodEdDSA.Sign(signingInput(h, payload), key.Private)
	if err != nil {
		return "", fmt.Errorf("signer: sign: %w", err)
	}
	return h + ".." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// Verify checks a detached signature over the canonical form of doc using
// the key in keys named by the header kid.
func Verify(jws string, doc any, keys KeySet) (*Header, error) {
	payload, err := canonicalize.JCS(doc)
	if err != nil {
		return nil, fmt.Errorf("signer: canonicalize payload: %w", err)
	}
	return VerifyCanonical(jws, payload, keys)
}

// VerifyCanonical checks a detached signature over canonical payload bytes.
func VerifyCanonical(jws string, payload []byte, keys KeySet) (*Header, error) {
	hdr, h, sig, err := split(jws)
	if err != nil {
		return nil, err
	}
	if hdr.Alg != jwt.SigningMethodEdDSA.Alg() {
		return nil, fmt.Errorf("%w: unexpected signing method %q", ErrMalformed, hdr.Alg)
	}
	if !hdr.B64 {
		return nil, fmt.Errorf("%w: unencoded payloads are not supported", ErrMalformed)
	}
	pub, ok := keys[hdr.Kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, hdr.Kid)
	}
	if err := jwt.SigningMethodEdDSA.Verify(signingInput(h, payload), sig, pub); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return hdr, nil
}

// ParseHeader decodes the protected header without verifying anything.
func ParseHeader(jws string) (*Header, error) {
	hdr, _, _, err := split(jws)
	return hdr, err
}

func split(jws string) (*Header, string, []byte, error) {
	parts := strings.Split(jws, ".")
	if len(parts) != 3 || parts[1] != "" {
		return nil, "", nil, fmt.Errorf("%w: expected <header>..<signature>", ErrMalformed)
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, "", nil, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	var hdr Header
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return nil, "", nil, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, "", nil, fmt.Errorf("%w: signature: %v", ErrMalformed, err)
	}
	return &hdr, parts[0], sig, nil
}

func signingInput(encodedHeader string, payload []byte) string {
	return encodedHeader + "." + base64.RawURLEncoding.EncodeToString(payload)
}
