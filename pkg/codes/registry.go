package codes

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
)

// Category groups codes by the kind of reasoning that produced them.
type Category string

const (
	CategoryStructural Category = "structural"
	CategoryGrammar    Category = "grammar"
	CategoryInvariant  Category = "invariant"
	CategorySemantic   Category = "semantic"
	CategoryRegistry   Category = "registry"
	CategoryTransition Category = "transition"
	CategoryWarning    Category = "warning"
)

// Entry is one row of the externally published registry.
type Entry struct {
	Code        Code     `json:"code"`
	Category    Category `json:"category"`
	Severity    string   `json:"severity"`
	Description string   `json:"description"`
}

// Registry is the parsed registry.json document.
type Registry struct {
	Version string  `json:"version"`
	Codes   []Entry `json:"codes"`

	index map[Code]Entry
}

//go:embed registry.json
var registryJSON []byte

var (
	loadOnce sync.Once
	loaded   *Registry
	loadErr  error
)

// ParseRegistry decodes a registry document and indexes it by code.
// Duplicate codes are rejected.
func ParseRegistry(data []byte) (*Registry, error) {
	var r Registry
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("codes: parse registry: %w", err)
	}
	r.index = make(map[Code]Entry, len(r.Codes))
	for _, e := range r.Codes {
		if _, dup := r.index[e.Code]; dup {
			return nil, fmt.Errorf("codes: duplicate registry entry %q", e.Code)
		}
		r.index[e.Code] = e
	}
	return &r, nil
}

// Default returns the embedded registry. It panics if the embedded document is
// malformed, which is a build defect caught by the package tests.
func Default() *Registry {
	loadOnce.Do(func() {
		loaded, loadErr = ParseRegistry(registryJSON)
	})
	if loadErr != nil {
		panic(loadErr)
	}
	return loaded
}

// Lookup returns the registry entry for c.
func (r *Registry) Lookup(c Code) (Entry, bool) {
	e, ok := r.index[c]
	return e, ok
}

// IsRegistered reports whether c is part of the embedded registry.
func IsRegistered(c Code) bool {
	_, ok := Default().Lookup(c)
	return ok
}

// CategoryOf returns the category of c, or "" if c is not registered.
func CategoryOf(c Code) Category {
	e, ok := Default().Lookup(c)
	if !ok {
		return ""
	}
	return e.Category
}
