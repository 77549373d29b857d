// Package extension implements the namespaced extension-key grammar used by
// receipts and interaction evidence to carry vendor or protocol data.
//
// A key looks like "org.peacprotocol/interaction@0.1": a reverse-DNS
// namespace, a slash, a lowercase name, and an optional numeric version.
// Validation inspects keys only; values are opaque JSON.
package extension

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// KeyPattern is the wire-stable extension key grammar.
const KeyPattern = `^([a-z0-9-]+\.)+[a-z0-9-]+/[a-z][a-z0-9._:-]{0,126}[a-z0-9](?:@[0-9]+(?:\.[0-9]+)*)?$`

var keyRe = regexp.MustCompile(KeyPattern)

// legacyKeys predate the dotted-namespace rule and stay valid on the wire.
var legacyKeys = map[string]bool{
	"peac/obligations": true,
}

// Key is a parsed extension key.
type Key struct {
	Raw       string
	Namespace string
	Name      string
	// Version is the literal suffix after '@', or "".
	Version string
	semver  *semver.Version
}

// IsValidKey reports whether s satisfies the extension key grammar.
func IsValidKey(s string) bool {
	return legacyKeys[s] || keyRe.MatchString(s)
}

// ParseKey parses s into its components.
func ParseKey(s string) (Key, error) {
	if !IsValidKey(s) {
		return Key{}, fmt.Errorf("extension: invalid key %q", s)
	}
	k := Key{Raw: s}
	body := s
	if at := strings.IndexByte(s, '@'); at >= 0 {
		body, k.Version = s[:at], s[at+1:]
		// Keys may carry more numeric components than semver allows; those
		// keep their literal version but do not participate in ordering.
		if v, err := semver.NewVersion(k.Version); err == nil {
			k.semver = v
		}
	}
	slash := strings.IndexByte(body, '/')
	k.Namespace, k.Name = body[:slash], body[slash+1:]
	return k, nil
}

// Base returns "namespace/name" without the version suffix.
func (k Key) Base() string {
	return k.Namespace + "/" + k.Name
}

// SemVer returns the parsed version, or nil when the key is unversioned or
// its version is not semver-compatible.
func (k Key) SemVer() *semver.Version {
	return k.semver
}

// Satisfies reports whether the key's version meets constraint (for example
// ">= 0.1, < 1"). Unversioned keys never satisfy a constraint.
func (k Key) Satisfies(constraint string) (bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("extension: bad constraint %q: %w", constraint, err)
	}
	if k.semver == nil {
		return false, nil
	}
	return c.Check(k.semver), nil
}

// Map is an extension bag: namespaced key to opaque JSON value.
type Map map[string]any

// SortedKeys returns the keys of m in lexicographic order.
func (m Map) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FirstInvalidKey returns the lexicographically first key that fails the
// grammar. The fixed order makes the reported key identical across runs.
func (m Map) FirstInvalidKey() (string, bool) {
	for _, k := range m.SortedKeys() {
		if !IsValidKey(k) {
			return k, true
		}
	}
	return "", false
}

// Lookup finds the entry whose key has the given "namespace/name" base. When
// several versions are present the highest semver version wins; unversioned
// keys rank below any versioned key.
func (m Map) Lookup(base string) (Key, any, bool) {
	var (
		best  Key
		found bool
	)
	for _, raw := range m.SortedKeys() {
		k, err := ParseKey(raw)
		if err != nil || k.Base() != base {
			continue
		}
		if !found || newer(k, best) {
			best, found = k, true
		}
	}
	if !found {
		return Key{}, nil, false
	}
	return best, m[best.Raw], true
}

func newer(a, b Key) bool {
	switch {
	case a.semver == nil:
		return false
	case b.semver == nil:
		return true
	default:
		return a.semver.GreaterThan(b.semver)
	}
}
