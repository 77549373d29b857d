// Package schema is the structural layer: embedded JSON Schemas (Draft
// 2020-12) that ordered validators run as their final confirmation pass.
//
// Failures are reduced to a single Failure chosen deterministically, so the
// reported field does not depend on map iteration or keyword evaluation order.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var files embed.FS

const baseURL = "https://peacprotocol.org/schemas/"

// Name identifies an embedded schema.
type Name string

const (
	WorkflowContext     Name = "workflow-context"
	WorkflowSummary     Name = "workflow-summary"
	InteractionEvidence Name = "interaction-evidence"
	DisputeAttestation  Name = "dispute-attestation"
	CommerceReceipt     Name = "receipt-commerce"
	AttestationReceipt  Name = "receipt-attestation"
)

// Names lists every top-level schema.
func Names() []Name {
	return []Name{
		WorkflowContext, WorkflowSummary, InteractionEvidence,
		DisputeAttestation, CommerceReceipt, AttestationReceipt,
	}
}

// Failure is the first structural problem found in a document.
type Failure struct {
	// Field is a dotted path with bracketed indices, e.g. "evidence.grounds[0].code".
	Field   string
	Keyword string
	Message string
}

func (f *Failure) Error() string {
	if f.Field == "" {
		return "schema: " + f.Message
	}
	return fmt.Sprintf("schema: %s: %s", f.Field, f.Message)
}

var (
	once     sync.Once
	compiled map[Name]*jsonschema.Schema
	loadErr  error
)

func load() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true

	entries, err := files.ReadDir("schemas")
	if err != nil {
		loadErr = fmt.Errorf("schema: read embedded schemas: %w", err)
		return
	}
	for _, e := range entries {
		data, err := files.ReadFile("schemas/" + e.Name())
		if err != nil {
			loadErr = fmt.Errorf("schema: read %s: %w", e.Name(), err)
			return
		}
		if err := c.AddResource(baseURL+e.Name(), bytes.NewReader(data)); err != nil {
			loadErr = fmt.Errorf("schema: load %s: %w", e.Name(), err)
			return
		}
	}

	compiled = make(map[Name]*jsonschema.Schema, len(Names()))
	for _, n := range Names() {
		s, err := c.Compile(baseURL + string(n) + ".json")
		if err != nil {
			loadErr = fmt.Errorf("schema: compile %s: %w", n, err)
			return
		}
		compiled[n] = s
	}
}

func get(name Name) (*jsonschema.Schema, error) {
	once.Do(load)
	if loadErr != nil {
		return nil, loadErr
	}
	s, ok := compiled[name]
	if !ok {
		return nil, fmt.Errorf("schema: unknown schema %q", name)
	}
	return s, nil
}

// Check validates doc against the named schema and returns nil when it
// conforms. doc may be a decoded JSON value or any marshalable Go value.
func Check(name Name, doc any) *Failure {
	s, err := get(name)
	if err != nil {
		return &Failure{Keyword: "load", Message: err.Error()}
	}
	v, err := Normalize(doc)
	if err != nil {
		return &Failure{Keyword: "type", Message: err.Error()}
	}
	err = s.Validate(v)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return &Failure{Keyword: "validate", Message: err.Error()}
	}
	leaf := firstLeaf(ve)
	return &Failure{
		Field:   fieldPath(leaf.InstanceLocation),
		Keyword: lastSegment(leaf.KeywordLocation),
		Message: leaf.Message,
	}
}

// Normalize converts doc into the decoded-JSON shape the validator
// understands, including values nested in already-generic maps. Numbers are
// kept as json.Number to preserve integer checks.
func Normalize(doc any) (any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}

// Decode parses raw JSON into a generic value with json.Number numbers.
func Decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return v, nil
}

// firstLeaf picks the leaf cause with the smallest instance location, then
// the smallest keyword location.
func firstLeaf(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	var leaves []*jsonschema.ValidationError
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			leaves = append(leaves, e)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.SliceStable(leaves, func(i, j int) bool {
		if leaves[i].InstanceLocation != leaves[j].InstanceLocation {
			return leaves[i].InstanceLocation < leaves[j].InstanceLocation
		}
		return leaves[i].KeywordLocation < leaves[j].KeywordLocation
	})
	return leaves[0]
}

// fieldPath turns a JSON pointer into the dotted form used in error fields.
func fieldPath(ptr string) string {
	if ptr == "" || ptr == "/" {
		return ""
	}
	var b strings.Builder
	for _, seg := range strings.Split(strings.TrimPrefix(ptr, "/"), "/") {
		seg = strings.ReplaceAll(strings.ReplaceAll(seg, "~1", "/"), "~0", "~")
		if _, err := strconv.Atoi(seg); err == nil && b.Len() > 0 {
			b.WriteString("[" + seg + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}

func lastSegment(loc string) string {
	if i := strings.LastIndexByte(loc, '/'); i >= 0 {
		return loc[i+1:]
	}
	return loc
}
