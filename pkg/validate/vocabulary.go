package validate

import (
	"fmt"
	"regexp"
	"sort"
)

// Vocabulary is an open namespace: any string matching the grammar is
// acceptable, and a set of well-known values is tracked so callers can warn
// on well-formed but unregistered ones. Vocabularies are immutable.
type Vocabulary struct {
	grammar *regexp.Regexp
	known   map[string]struct{}
}

// NewVocabulary panics if a well-known value fails the grammar; it is meant
// for package-level registries.
func NewVocabulary(grammar *regexp.Regexp, known ...string) *Vocabulary {
	v, err := (&Vocabulary{grammar: grammar}).Extend(known...)
	if err != nil {
		panic(err)
	}
	return v
}

// Extend returns a copy of v with additional well-known values.
func (v *Vocabulary) Extend(values ...string) (*Vocabulary, error) {
	out := &Vocabulary{grammar: v.grammar, known: make(map[string]struct{}, len(v.known)+len(values))}
	for k := range v.known {
		out.known[k] = struct{}{}
	}
	for _, s := range values {
		if !v.grammar.MatchString(s) {
			return nil, fmt.Errorf("vocabulary: %q does not match %s", s, v.grammar)
		}
		out.known[s] = struct{}{}
	}
	return out, nil
}

// WellFormed reports whether s matches the grammar.
func (v *Vocabulary) WellFormed(s string) bool {
	return v.grammar.MatchString(s)
}

// Known reports whether s is a registered value.
func (v *Vocabulary) Known(s string) bool {
	_, ok := v.known[s]
	return ok
}

// Values returns the registered values in sorted order.
func (v *Vocabulary) Values() []string {
	out := make([]string, 0, len(v.known))
	for k := range v.known {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
