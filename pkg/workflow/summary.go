package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/peacprotocol/peac/core/pkg/codes"
	"github.com/peacprotocol/peac/core/pkg/schema"
	"github.com/peacprotocol/peac/core/pkg/validate"
)

// SummaryType is the attestation type of a workflow summary.
const SummaryType = "peac/workflow-summary"

// Status is the outcome of a workflow run.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Summary attests to a whole workflow run.
type Summary struct {
	Type     string          `json:"type"`
	Issuer   string          `json:"issuer"`
	IssuedAt string          `json:"issued_at"`
	Evidence SummaryEvidence `json:"evidence"`
}

// SummaryEvidence names the receipts of a run, either directly or by
// Merkle root and count.
type SummaryEvidence struct {
	WorkflowID        string   `json:"workflow_id"`
	Status            Status   `json:"status"`
	StartedAt         string   `json:"started_at"`
	CompletedAt       string   `json:"completed_at,omitempty"`
	ReceiptRefs       []string `json:"receipt_refs,omitempty"`
	ReceiptMerkleRoot string   `json:"receipt_merkle_root,omitempty"`
	ReceiptCount      *int     `json:"receipt_count,omitempty"`
	OrchestratorID    string   `json:"orchestrator_id,omitempty"`
	AgentsInvolved    []string `json:"agents_involved,omitempty"`
	FinalResultHash   string   `json:"final_result_hash,omitempty"`
	ErrorContext      string   `json:"error_context,omitempty"`
}

// ValidateSummaryOrdered checks a summary attestation. Order:
// object shape, workflow_id, receipt coverage, count and root consistency,
// completion time, timing order, schema.
func ValidateSummaryOrdered(input any) validate.Result[Summary] {
	fail := func(field, msg string) validate.Result[Summary] {
		return validate.Fail[Summary](codes.WorkflowSummaryInvalid, field, msg, nil)
	}

	doc, err := schema.Normalize(input)
	if err != nil {
		return fail("", err.Error())
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return fail("", "workflow summary must be an object")
	}
	ev, ok := obj["evidence"].(map[string]any)
	if !ok {
		return fail("evidence", "evidence must be an object")
	}

	if s, ok := ev["workflow_id"].(string); !ok || !IsValidWorkflowID(s) {
		return validate.Fail[Summary](codes.WorkflowIDInvalid, "evidence.workflow_id", "workflow_id must match wf_{20-48 id chars}", nil)
	}

	refs, hasRefs := ev["receipt_refs"].([]any)
	root, hasRoot := ev["receipt_merkle_root"].(string)
	count, hasCount := ev["receipt_count"].(json.Number)
	if !hasRefs && !(hasRoot && hasCount) {
		return fail("evidence.receipt_refs", "receipt_refs or receipt_merkle_root with receipt_count is required")
	}
	if hasRefs && len(refs) == 0 {
		return fail("evidence.receipt_refs", "receipt_refs must not be empty")
	}
	if hasRefs && hasCount {
		if n, err := count.Int64(); err != nil || n != int64(len(refs)) {
			return fail("evidence.receipt_count", fmt.Sprintf("receipt_count %s does not match %d receipt_refs", count, len(refs)))
		}
	}
	if hasRefs && hasRoot {
		if strs, ok := stringSlice(refs); ok {
			if want, err := ReceiptMerkleRoot(strs); err == nil && want != root {
				return fail("evidence.receipt_merkle_root", "receipt_merkle_root does not match receipt_refs")
			}
		}
	}

	status, _ := ev["status"].(string)
	completedRaw, hasCompleted := ev["completed_at"].(string)
	if Status(status) != StatusInProgress && status != "" && !hasCompleted {
		return fail("evidence.completed_at", "completed_at is required once a workflow has finished")
	}
	if hasCompleted {
		startedRaw, _ := ev["started_at"].(string)
		started, err1 := time.Parse(time.RFC3339Nano, startedRaw)
		completed, err2 := time.Parse(time.RFC3339Nano, completedRaw)
		if err1 == nil && err2 == nil && completed.Before(started) {
			return fail("evidence.completed_at", "completed_at precedes started_at")
		}
	}

	if f := schema.Check(schema.WorkflowSummary, obj); f != nil {
		return fail(f.Field, f.Message)
	}

	var s Summary
	raw, _ := json.Marshal(obj)
	if err := json.Unmarshal(raw, &s); err != nil {
		return fail("", err.Error())
	}
	return validate.OK(&s, nil)
}

// ValidateSummary is the throwing form of ValidateSummaryOrdered.
func ValidateSummary(input any) (*Summary, error) {
	return ValidateSummaryOrdered(input).Unwrap()
}

func stringSlice(in []any) ([]string, bool) {
	out := make([]string, len(in))
	for i, v := range in {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}
