// Package codes is the closed vocabulary of error and warning codes emitted by
// the PEAC validators and the dispute state machine.
//
// Codes are stable identifiers. They MUST NOT change between releases, and
// every constant declared here must also be present in registry.json.
package codes

// Code is a registered error or warning identifier.
type Code string

func (c Code) String() string { return string(c) }

// IsWarning reports whether c belongs to the warning channel.
func (c Code) IsWarning() bool {
	return len(c) > 2 && c[0] == 'W' && c[1] == '_'
}

const (
	// --- Workflow context ---
	WorkflowContextInvalid = Code("E_WORKFLOW_CONTEXT_INVALID")
	WorkflowIDInvalid      = Code("E_WORKFLOW_ID_INVALID")
	WorkflowStepIDInvalid  = Code("E_WORKFLOW_STEP_ID_INVALID")
	WorkflowLimitExceeded  = Code("E_WORKFLOW_LIMIT_EXCEEDED")
	WorkflowDAGInvalid     = Code("E_WORKFLOW_DAG_INVALID")
	WorkflowSummaryInvalid = Code("E_WORKFLOW_SUMMARY_INVALID")

	WarnWorkflowFrameworkUnregistered = Code("W_WORKFLOW_FRAMEWORK_UNREGISTERED")

	// --- Interaction evidence ---
	InteractionInvalidFormat      = Code("E_INTERACTION_INVALID_FORMAT")
	InteractionMissingID          = Code("E_INTERACTION_MISSING_ID")
	InteractionMissingKind        = Code("E_INTERACTION_MISSING_KIND")
	InteractionMissingStartedAt   = Code("E_INTERACTION_MISSING_STARTED_AT")
	InteractionMissingExecutor    = Code("E_INTERACTION_MISSING_EXECUTOR")
	InteractionInvalidKindFormat  = Code("E_INTERACTION_INVALID_KIND_FORMAT")
	InteractionKindReserved       = Code("E_INTERACTION_KIND_RESERVED")
	InteractionInvalidDigest      = Code("E_INTERACTION_INVALID_DIGEST")
	InteractionInvalidDigestAlg   = Code("E_INTERACTION_INVALID_DIGEST_ALG")
	InteractionInvalidTiming      = Code("E_INTERACTION_INVALID_TIMING")
	InteractionMissingResult      = Code("E_INTERACTION_MISSING_RESULT")
	InteractionMissingErrorDetail = Code("E_INTERACTION_MISSING_ERROR_DETAIL")
	InteractionInvalidExtension   = Code("E_INTERACTION_INVALID_EXTENSION_KEY")
	InteractionMissingTarget      = Code("E_INTERACTION_MISSING_TARGET")

	WarnInteractionKindUnregistered    = Code("W_INTERACTION_KIND_UNREGISTERED")
	WarnInteractionMissingTarget       = Code("W_INTERACTION_MISSING_TARGET")
	WarnInteractionDigestTruncMismatch = Code("W_INTERACTION_DIGEST_TRUNCATION_MISMATCH")

	// --- Dispute attestation ---
	DisputeInvalidFormat        = Code("E_DISPUTE_INVALID_FORMAT")
	DisputeResolutionRequired   = Code("E_DISPUTE_RESOLUTION_REQUIRED")
	DisputeResolutionNotAllowed = Code("E_DISPUTE_RESOLUTION_NOT_ALLOWED")
	DisputeDescriptionTooShort  = Code("E_DISPUTE_DESCRIPTION_TOO_SHORT")

	// --- Dispute transitions ---
	InvalidTransition    = Code("INVALID_TRANSITION")
	ResolutionRequired   = Code("RESOLUTION_REQUIRED")
	ResolutionNotAllowed = Code("RESOLUTION_NOT_ALLOWED")

	// --- Receipts ---
	ReceiptInvalidFormat    = Code("E_RECEIPT_INVALID_FORMAT")
	ReceiptVariantUnknown   = Code("E_RECEIPT_VARIANT_UNKNOWN")
	ReceiptVariantAmbiguous = Code("E_RECEIPT_VARIANT_AMBIGUOUS")
	ReceiptEvidenceLimit    = Code("E_RECEIPT_EVIDENCE_LIMIT")

	// --- Policy documents ---
	PolicyInvalid          = Code("E_INVALID_POLICY")
	PolicyInvalidVersion   = Code("E_INVALID_POLICY_VERSION")
	PolicyInvalidEnum      = Code("E_INVALID_POLICY_ENUM")
	PolicyInvalidCondition = Code("E_INVALID_POLICY_CONDITION")
)

// All returns the full set of normative codes in declaration order.
func All() []Code {
	return []Code{
		WorkflowContextInvalid,
		WorkflowIDInvalid,
		WorkflowStepIDInvalid,
		WorkflowLimitExceeded,
		WorkflowDAGInvalid,
		WorkflowSummaryInvalid,
		WarnWorkflowFrameworkUnregistered,
		InteractionInvalidFormat,
		InteractionMissingID,
		InteractionMissingKind,
		InteractionMissingStartedAt,
		InteractionMissingExecutor,
		InteractionInvalidKindFormat,
		InteractionKindReserved,
		InteractionInvalidDigest,
		InteractionInvalidDigestAlg,
		InteractionInvalidTiming,
		InteractionMissingResult,
		InteractionMissingErrorDetail,
		InteractionInvalidExtension,
		InteractionMissingTarget,
		WarnInteractionKindUnregistered,
		WarnInteractionMissingTarget,
		WarnInteractionDigestTruncMismatch,
		DisputeInvalidFormat,
		DisputeResolutionRequired,
		DisputeResolutionNotAllowed,
		DisputeDescriptionTooShort,
		InvalidTransition,
		ResolutionRequired,
		ResolutionNotAllowed,
		ReceiptInvalidFormat,
		ReceiptVariantUnknown,
		ReceiptVariantAmbiguous,
		ReceiptEvidenceLimit,
		PolicyInvalid,
		PolicyInvalidVersion,
		PolicyInvalidEnum,
		PolicyInvalidCondition,
	}
}
