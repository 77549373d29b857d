// Package interaction validates InteractionEvidence v0.1, the record of a
// single agent action (tool call, HTTP request, file access, message).
package interaction

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/peacprotocol/peac/core/pkg/extension"
	"github.com/peacprotocol/peac/core/pkg/validate"
)

// ExtensionKey is the extension base under which receipts carry evidence.
const ExtensionKey = "org.peacprotocol/interaction"

var kindRe = regexp.MustCompile(`^[a-z][a-z0-9._:-]{0,126}[a-z0-9]$`)

// ReservedPrefixes may only be used by kinds in the registry.
var ReservedPrefixes = []string{"peac.", "org.peacprotocol."}

// Kinds is the stock kind registry.
var Kinds = validate.NewVocabulary(kindRe,
	"tool.call", "http.request", "fs.read", "fs.write", "message",
)

// Kind is an open-namespace action kind.
type Kind string

// ParseKind checks the kind grammar only.
func ParseKind(s string) (Kind, error) {
	if !kindRe.MatchString(s) {
		return "", fmt.Errorf("interaction: invalid kind %q", s)
	}
	return Kind(s), nil
}

// Reserved reports whether k uses a reserved prefix.
func (k Kind) Reserved() bool {
	for _, p := range ReservedPrefixes {
		if strings.HasPrefix(string(k), p) {
			return true
		}
	}
	return false
}

// NeedsTool reports whether k requires a tool target.
func (k Kind) NeedsTool() bool { return strings.HasPrefix(string(k), "tool.") }

// NeedsResource reports whether k requires a resource.uri target.
func (k Kind) NeedsResource() bool {
	return strings.HasPrefix(string(k), "http.") || strings.HasPrefix(string(k), "fs.")
}

// Digest algorithms.
const (
	AlgSHA256         = "sha-256"
	AlgSHA256Trunc64K = "sha-256:trunc-64k"
	AlgSHA256Trunc1M  = "sha-256:trunc-1m"
)

// truncation thresholds in bytes, keyed by algorithm
var truncLimits = map[string]int64{
	AlgSHA256Trunc64K: 64 * 1024,
	AlgSHA256Trunc1M:  1024 * 1024,
}

// Digest references payload content. Bytes is the pre-truncation length.
type Digest struct {
	Alg   string `json:"alg"`
	Value string `json:"value"`
	Bytes int64  `json:"bytes"`
}

// Payload is a redacted input or output reference.
type Payload struct {
	Digest    Digest `json:"digest"`
	Redaction string `json:"redaction"`
}

// Executor is the runtime that performed the action.
type Executor struct {
	Platform     string  `json:"platform"`
	Version      string  `json:"version,omitempty"`
	PluginID     string  `json:"plugin_id,omitempty"`
	PluginDigest *Digest `json:"plugin_digest,omitempty"`
}

// Tool is the tool target of a tool.* action.
type Tool struct {
	Name     string `json:"name"`
	Provider string `json:"provider,omitempty"`
	Version  string `json:"version,omitempty"`
}

// Resource is the resource target of an http.* or fs.* action.
type Resource struct {
	URI    string `json:"uri,omitempty"`
	Method string `json:"method,omitempty"`
}

// Result is the action outcome.
type Result struct {
	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
	Retryable *bool  `json:"retryable,omitempty"`
}

// Policy is the policy context the action ran under.
type Policy struct {
	Decision              string  `json:"decision"`
	SandboxEnabled        *bool   `json:"sandbox_enabled,omitempty"`
	Elevated              *bool   `json:"elevated,omitempty"`
	EffectivePolicyDigest *Digest `json:"effective_policy_digest,omitempty"`
}

// Refs link the action to payments and other receipts.
type Refs struct {
	PaymentReference  string `json:"payment_reference,omitempty"`
	RelatedReceiptRID string `json:"related_receipt_rid,omitempty"`
}

// EvidenceV01 is one interaction record.
type EvidenceV01 struct {
	InteractionID string        `json:"interaction_id"`
	Kind          Kind          `json:"kind"`
	Executor      Executor      `json:"executor"`
	Tool          *Tool         `json:"tool,omitempty"`
	Resource      *Resource     `json:"resource,omitempty"`
	Input         *Payload      `json:"input,omitempty"`
	Output        *Payload      `json:"output,omitempty"`
	StartedAt     string        `json:"started_at"`
	CompletedAt   string        `json:"completed_at,omitempty"`
	DurationMs    *int64        `json:"duration_ms,omitempty"`
	Result        *Result       `json:"result,omitempty"`
	Policy        *Policy       `json:"policy,omitempty"`
	Refs          *Refs         `json:"refs,omitempty"`
	Extensions    extension.Map `json:"extensions,omitempty"`
}
