package signer

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
)

// KeySet maps key ids to verification keys.
type KeySet map[string]ed25519.PublicKey

// Add registers pub under kid.
func (ks KeySet) Add(kid string, pub ed25519.PublicKey) { ks[kid] = pub }

// JWK is the OKP/Ed25519 JSON Web Key form used for key files. D is only
// present for private keys.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	Kid string `json:"kid"`
	X   string `json:"x"`
	D   string `json:"d,omitempty"`
}

// JWKSet is a set of public keys, as served at a well-known location.
type JWKSet struct {
	Keys []JWK `json:"keys"`
}

// PublicJWK returns the public JWK of k.
func (k *Key) PublicJWK() JWK {
	return JWK{Kty: "OKP", Crv: "Ed25519", Kid: k.ID, X: base64.RawURLEncoding.EncodeToString(k.Public())}
}

// PrivateJWK returns the JWK of k including the private seed.
func (k *Key) PrivateJWK() JWK {
	j := k.PublicJWK()
	j.D = base64.RawURLEncoding.EncodeToString(k.Private.Seed())
	return j
}

// PublicKey decodes the x member.
func (j JWK) PublicKey() (ed25519.PublicKey, error) {
	if j.Kty != "OKP" || j.Crv != "Ed25519" {
		return nil, fmt.Errorf("signer: unsupported key type %s/%s", j.Kty, j.Crv)
	}
	x, err := base64.RawURLEncoding.DecodeString(j.X)
	if err != nil || len(x) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("signer: invalid public key for %q", j.Kid)
	}
	return ed25519.PublicKey(x), nil
}

// Key decodes a private JWK.
func (j JWK) Key() (*Key, error) {
	pub, err := j.PublicKey()
	if err != nil {
		return nil, err
	}
	d, err := base64.RawURLEncoding.DecodeString(j.D)
	if err != nil || len(d) != ed25519.SeedSize {
		return nil, fmt.Errorf("signer: invalid private key for %q", j.Kid)
	}
	k := &Key{ID: j.Kid, Private: ed25519.NewKeyFromSeed(d)}
	if !k.Public().Equal(pub) {
		return nil, fmt.Errorf("signer: private key for %q does not match x", j.Kid)
	}
	return k, nil
}

// KeySet converts s into a lookup table.
func (s JWKSet) KeySet() (KeySet, error) {
	ks := KeySet{}
	for _, j := range s.Keys {
		pub, err := j.PublicKey()
		if err != nil {
			return nil, err
		}
		ks.Add(j.Kid, pub)
	}
	return ks, nil
}

// LoadKey reads a private JWK file.
func LoadKey(path string) (*Key, error) {
	var j JWK
	if err := readJSON(path, &j); err != nil {
		return nil, err
	}
	return j.Key()
}

// LoadKeySet reads either a single JWK or a {"keys":[...]} set.
func LoadKeySet(path string) (KeySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signer: read %s: %w", path, err)
	}
	var set JWKSet
	if err := json.Unmarshal(data, &set); err == nil && len(set.Keys) > 0 {
		return set.KeySet()
	}
	var j JWK
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("signer: parse %s: %w", path, err)
	}
	return JWKSet{Keys: []JWK{j}}.KeySet()
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("signer: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("signer: parse %s: %w", path, err)
	}
	return nil
}
