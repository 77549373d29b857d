package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/peacprotocol/peac/core/pkg/codes"
	"github.com/peacprotocol/peac/core/pkg/extension"
	"github.com/peacprotocol/peac/core/pkg/schema"
	"github.com/peacprotocol/peac/core/pkg/validate"
)

// Option configures validation.
type Option func(*options)

type options struct {
	frameworks *validate.Vocabulary
}

// WithFrameworks replaces the framework registry used for warnings.
func WithFrameworks(v *validate.Vocabulary) Option {
	return func(o *options) { o.frameworks = v }
}

func buildOptions(opts []Option) options {
	o := options{frameworks: Frameworks}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// ValidateOrdered checks input in a fixed order and reports the first
// failure. input is a decoded JSON value or a Context.
//
//	object                           E_WORKFLOW_CONTEXT_INVALID
//	workflow_id grammar              E_WORKFLOW_ID_INVALID
//	step_id grammar                  E_WORKFLOW_STEP_ID_INVALID
//	parent_step_ids array, <= 16     E_WORKFLOW_CONTEXT_INVALID, E_WORKFLOW_LIMIT_EXCEEDED
//	framework, prev_receipt_hash     E_WORKFLOW_CONTEXT_INVALID
//	self parent, then duplicate      E_WORKFLOW_DAG_INVALID
//	schema                           E_WORKFLOW_CONTEXT_INVALID
func ValidateOrdered(input any, opts ...Option) validate.Result[Context] {
	o := buildOptions(opts)

	doc, err := schema.Normalize(input)
	if err != nil {
		return validate.Fail[Context](codes.WorkflowContextInvalid, "", err.Error(), nil)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return validate.Fail[Context](codes.WorkflowContextInvalid, "", "workflow context must be an object", nil)
	}

	if s, ok := obj["workflow_id"].(string); !ok || !IsValidWorkflowID(s) {
		return validate.Fail[Context](codes.WorkflowIDInvalid, "workflow_id", "workflow_id must match wf_{20-48 id chars}", nil)
	}
	stepID, ok := obj["step_id"].(string)
	if !ok || !IsValidStepID(stepID) {
		return validate.Fail[Context](codes.WorkflowStepIDInvalid, "step_id", "step_id must match step_{20-48 id chars}", nil)
	}

	var parents []any
	if raw, present := obj["parent_step_ids"]; present {
		parents, ok = raw.([]any)
		if !ok {
			return validate.Fail[Context](codes.WorkflowContextInvalid, "parent_step_ids", "parent_step_ids must be an array", nil)
		}
		if len(parents) > MaxParents {
			return validate.Fail[Context](codes.WorkflowLimitExceeded, "parent_step_ids",
				fmt.Sprintf("parent_step_ids has %d entries, limit is %d", len(parents), MaxParents), nil)
		}
	}

	if raw, present := obj["framework"]; present {
		if s, ok := raw.(string); !ok || !IsValidFramework(s) {
			return validate.Fail[Context](codes.WorkflowContextInvalid, "framework", "framework must match ^[a-z][a-z0-9_-]{0,63}$", nil)
		}
	}
	if raw, present := obj["prev_receipt_hash"]; present {
		if s, ok := raw.(string); !ok || !IsValidHash(s) {
			return validate.Fail[Context](codes.WorkflowContextInvalid, "prev_receipt_hash", "prev_receipt_hash must match sha256:<64 hex>", nil)
		}
	}

	for i, p := range parents {
		if p == stepID {
			return validate.Fail[Context](codes.WorkflowDAGInvalid, fmt.Sprintf("parent_step_ids[%d]", i), "step lists itself as a parent", nil)
		}
	}
	seen := make(map[string]struct{}, len(parents))
	for i, p := range parents {
		s, ok := p.(string)
		if !ok {
			continue
		}
		if _, dup := seen[s]; dup {
			return validate.Fail[Context](codes.WorkflowDAGInvalid, fmt.Sprintf("parent_step_ids[%d]", i), "duplicate parent "+s, nil)
		}
		seen[s] = struct{}{}
	}

	if f := schema.Check(schema.WorkflowContext, obj); f != nil {
		return validate.Fail[Context](codes.WorkflowContextInvalid, f.Field, f.Message, nil)
	}

	var c Context
	raw, _ := json.Marshal(obj)
	if err := json.Unmarshal(raw, &c); err != nil {
		return validate.Fail[Context](codes.WorkflowContextInvalid, "", err.Error(), nil)
	}
	if c.ParentStepIDs == nil {
		c.ParentStepIDs = []string{}
	}

	var warnings []validate.Issue
	if c.Framework != "" && !o.frameworks.Known(c.Framework) {
		warnings = validate.Warn(warnings, codes.WarnWorkflowFrameworkUnregistered, "framework",
			fmt.Sprintf("framework %q is well-formed but not registered", c.Framework))
	}
	return validate.OK(&c, warnings)
}

// Validate is the throwing form of ValidateOrdered.
func Validate(input any, opts ...Option) (*Context, error) {
	return ValidateOrdered(input, opts...).Unwrap()
}

// ValidateCompat is the warnings-free form of ValidateOrdered.
func ValidateCompat(input any, opts ...Option) validate.Compat {
	return ValidateOrdered(input, opts...).Compat()
}

// FromExtensions finds and validates the workflow context in a receipt's
// extensions. ok is false when no workflow extension is present.
func FromExtensions(ext extension.Map, opts ...Option) (res validate.Result[Context], ok bool) {
	_, v, found := ext.Lookup(ExtensionKey)
	if !found {
		return validate.Result[Context]{}, false
	}
	return ValidateOrdered(v, opts...), true
}
