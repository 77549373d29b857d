// Package workflow correlates receipts into a step DAG. A Context is one node
// of that DAG, carried on a receipt under the "org.peacprotocol/workflow"
// extension key; only local DAG constraints are enforced.
package workflow

import (
	"encoding/json"
	"regexp"

	"github.com/peacprotocol/peac/core/pkg/validate"
)

// ExtensionKey is the extension base under which receipts carry a Context.
const ExtensionKey = "org.peacprotocol/workflow"

// MaxParents bounds fan-in for a single step.
const MaxParents = 16

var (
	workflowIDRe = regexp.MustCompile(`^wf_[a-zA-Z0-9_-]{20,48}$`)
	stepIDRe     = regexp.MustCompile(`^step_[a-zA-Z0-9_-]{20,48}$`)
	frameworkRe  = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,63}$`)
	hashRe       = regexp.MustCompile(`^sha256:[a-f0-9]{64}$`)
)

// Frameworks is the stock framework registry.
var Frameworks = validate.NewVocabulary(frameworkRe,
	"mcp", "a2a", "openai", "langgraph", "crewai", "autogen", "dspy", "smolagents", "custom",
)

// Context is one step in a workflow.
type Context struct {
	WorkflowID             string   `json:"workflow_id"`
	StepID                 string   `json:"step_id"`
	ParentStepIDs          []string `json:"parent_step_ids"`
	OrchestratorID         string   `json:"orchestrator_id,omitempty"`
	OrchestratorReceiptRef string   `json:"orchestrator_receipt_ref,omitempty"`
	StepIndex              *int     `json:"step_index,omitempty"`
	StepTotal              *int     `json:"step_total,omitempty"`
	ToolName               string   `json:"tool_name,omitempty"`
	Framework              string   `json:"framework,omitempty"`
	PrevReceiptHash        string   `json:"prev_receipt_hash,omitempty"`
}

// MarshalJSON always emits parent_step_ids as an array.
func (c Context) MarshalJSON() ([]byte, error) {
	type plain Context
	p := plain(c)
	if p.ParentStepIDs == nil {
		p.ParentStepIDs = []string{}
	}
	return json.Marshal(p)
}

// IsValidWorkflowID reports whether s is a well-formed workflow id.
func IsValidWorkflowID(s string) bool { return workflowIDRe.MatchString(s) }

// IsValidStepID reports whether s is a well-formed step id.
func IsValidStepID(s string) bool { return stepIDRe.MatchString(s) }

// IsValidFramework reports whether s satisfies the framework grammar.
func IsValidFramework(s string) bool { return frameworkRe.MatchString(s) }

// IsValidHash reports whether s is a "sha256:<64 hex>" chain hash.
func IsValidHash(s string) bool { return hashRe.MatchString(s) }

// HasValidDagSemantics reports whether c's parent list is a valid local edge
// set: no self-parent and no repeated parent.
func HasValidDagSemantics(c Context) bool {
	seen := make(map[string]struct{}, len(c.ParentStepIDs))
	for _, p := range c.ParentStepIDs {
		if p == c.StepID {
			return false
		}
		if _, dup := seen[p]; dup {
			return false
		}
		seen[p] = struct{}{}
	}
	return true
}
