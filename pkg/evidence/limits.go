// Package evidence bounds the size and shape of opaque JSON evidence
// (payment proofs, extension values) before anything else touches it.
package evidence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Limits caps resource use while walking an evidence value. Zero fields fall
// back to the defaults via WithDefaults.
type Limits struct {
	MaxBytes        int `yaml:"max_bytes"`
	MaxDepth        int `yaml:"max_depth"`
	MaxArrayLength  int `yaml:"max_array_length"`
	MaxObjectKeys   int `yaml:"max_object_keys"`
	MaxStringLength int `yaml:"max_string_length"`
	MaxTotalNodes   int `yaml:"max_total_nodes"`
}

// DefaultLimits returns the stock limits.
func DefaultLimits() Limits {
	return Limits{
		MaxBytes:        1 << 20,
		MaxDepth:        32,
		MaxArrayLength:  10000,
		MaxObjectKeys:   1000,
		MaxStringLength: 1 << 16,
		MaxTotalNodes:   100000,
	}
}

// WithDefaults replaces non-positive fields with their default.
func (l Limits) WithDefaults() Limits {
	d := DefaultLimits()
	fill := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&l.MaxBytes, d.MaxBytes)
	fill(&l.MaxDepth, d.MaxDepth)
	fill(&l.MaxArrayLength, d.MaxArrayLength)
	fill(&l.MaxObjectKeys, d.MaxObjectKeys)
	fill(&l.MaxStringLength, d.MaxStringLength)
	fill(&l.MaxTotalNodes, d.MaxTotalNodes)
	return l
}

// Violation names which limit was crossed.
type Violation string

const (
	ViolationBytes       Violation = "bytes"
	ViolationDepth       Violation = "depth"
	ViolationArrayLength Violation = "array_length"
	ViolationObjectKeys  Violation = "object_keys"
	ViolationString      Violation = "string_length"
	ViolationTotalNodes  Violation = "total_nodes"
	ViolationInvalidJSON Violation = "invalid_json"
)

// LimitError reports the first limit crossed during a walk.
type LimitError struct {
	Violation Violation
	Path      string
	Limit     int
	Actual    int
}

func (e *LimitError) Error() string {
	if e.Violation == ViolationInvalidJSON {
		return "evidence: invalid JSON"
	}
	if e.Path == "" {
		return fmt.Sprintf("evidence: %s %d exceeds limit %d", e.Violation, e.Actual, e.Limit)
	}
	return fmt.Sprintf("evidence: %s %d exceeds limit %d at %s", e.Violation, e.Actual, e.Limit, e.Path)
}

// CheckBytes checks raw JSON against the byte limit and then walks it.
// Empty input is accepted.
func CheckBytes(data []byte, limits Limits) error {
	limits = limits.WithDefaults()
	if len(data) == 0 {
		return nil
	}
	if len(data) > limits.MaxBytes {
		return &LimitError{Violation: ViolationBytes, Limit: limits.MaxBytes, Actual: len(data)}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return &LimitError{Violation: ViolationInvalidJSON}
	}
	return Check(v, limits)
}

// CheckValue encodes an already decoded value and checks it like CheckBytes,
// so the byte limit applies as well.
func CheckValue(value any, limits Limits) error {
	data, err := json.Marshal(value)
	if err != nil {
		return &LimitError{Violation: ViolationInvalidJSON}
	}
	return CheckBytes(data, limits)
}

// Check walks an already decoded value. Traversal is iterative and visits
// object keys in sorted order, so the reported path is stable across runs.
// It does not apply MaxBytes; use CheckValue for that.
func Check(value any, limits Limits) error {
	limits = limits.WithDefaults()

	type frame struct {
		v     any
		depth int
		path  string
	}
	stack := []frame{{v: value}}
	nodes := 0

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		nodes++
		if nodes > limits.MaxTotalNodes {
			return &LimitError{Violation: ViolationTotalNodes, Path: f.path, Limit: limits.MaxTotalNodes, Actual: nodes}
		}
		if f.depth > limits.MaxDepth {
			return &LimitError{Violation: ViolationDepth, Path: f.path, Limit: limits.MaxDepth, Actual: f.depth}
		}

		switch v := f.v.(type) {
		case string:
			if len(v) > limits.MaxStringLength {
				return &LimitError{Violation: ViolationString, Path: f.path, Limit: limits.MaxStringLength, Actual: len(v)}
			}
		case []any:
			if len(v) > limits.MaxArrayLength {
				return &LimitError{Violation: ViolationArrayLength, Path: f.path, Limit: limits.MaxArrayLength, Actual: len(v)}
			}
			for i := len(v) - 1; i >= 0; i-- {
				stack = append(stack, frame{v: v[i], depth: f.depth + 1, path: fmt.Sprintf("%s[%d]", f.path, i)})
			}
		case map[string]any:
			if len(v) > limits.MaxObjectKeys {
				return &LimitError{Violation: ViolationObjectKeys, Path: f.path, Limit: limits.MaxObjectKeys, Actual: len(v)}
			}
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if len(k) > limits.MaxStringLength {
					return &LimitError{Violation: ViolationString, Path: joinPath(f.path, k), Limit: limits.MaxStringLength, Actual: len(k)}
				}
			}
			for i := len(keys) - 1; i >= 0; i-- {
				k := keys[i]
				stack = append(stack, frame{v: v[k], depth: f.depth + 1, path: joinPath(f.path, k)})
			}
		}
	}
	return nil
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}
