package dispute

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/peacprotocol/peac/core/pkg/codes"
	"github.com/peacprotocol/peac/core/pkg/schema"
	"github.com/peacprotocol/peac/core/pkg/validate"
)

// AttestationType is the type tag of a dispute attestation.
const AttestationType = "peac/dispute"

// MinOtherDescription is the minimum description length, in characters, for
// disputes of type "other".
const MinOtherDescription = 50

// Type classifies what is being disputed.
type Type string

const (
	TypeUnauthorizedAccess   Type = "unauthorized_access"
	TypeAttributionMissing   Type = "attribution_missing"
	TypeAttributionIncorrect Type = "attribution_incorrect"
	TypeReceiptInvalid       Type = "receipt_invalid"
	TypeIdentitySpoofed      Type = "identity_spoofed"
	TypePurposeMismatch      Type = "purpose_mismatch"
	TypePolicyViolation      Type = "policy_violation"
	TypeFraud                Type = "fraud"
	TypeDuplicateRequest     Type = "duplicate_request"
	TypeQualityIssue         Type = "quality_issue"
	TypeOther                Type = "other"
)

// Outcome is the decision recorded in a resolution.
type Outcome string

const (
	OutcomeUpheld          Outcome = "upheld"
	OutcomeDismissed       Outcome = "dismissed"
	OutcomePartiallyUpheld Outcome = "partially_upheld"
	OutcomeSettled         Outcome = "settled"
)

// Resolution closes a dispute.
type Resolution struct {
	Outcome     Outcome `json:"outcome"`
	DecidedAt   string  `json:"decided_at"`
	DecidedBy   string  `json:"decided_by"`
	Rationale   string  `json:"rationale"`
	Remediation string  `json:"remediation,omitempty"`
}

// Ground is one stated reason for the dispute.
type Ground struct {
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// Evidence is the body of a dispute attestation.
type Evidence struct {
	DisputeID      string      `json:"dispute_id"`
	DisputeType    Type        `json:"dispute_type"`
	TargetRef      string      `json:"target_ref"`
	TargetType     string      `json:"target_type"`
	Grounds        []Ground    `json:"grounds"`
	Description    string      `json:"description"`
	State          State       `json:"state"`
	StateChangedAt string      `json:"state_changed_at,omitempty"`
	StateReason    string      `json:"state_reason,omitempty"`
	Resolution     *Resolution `json:"resolution,omitempty"`
}

// Attestation is a signed-over dispute record.
type Attestation struct {
	Type      string   `json:"type"`
	Issuer    string   `json:"issuer"`
	IssuedAt  string   `json:"issued_at"`
	ExpiresAt string   `json:"expires_at,omitempty"`
	Ref       string   `json:"ref,omitempty"`
	Evidence  Evidence `json:"evidence"`
}

// Clone returns a deep copy of a.
func (a *Attestation) Clone() *Attestation {
	out := *a
	out.Evidence.Grounds = append([]Ground(nil), a.Evidence.Grounds...)
	if a.Evidence.Resolution != nil {
		r := *a.Evidence.Resolution
		out.Evidence.Resolution = &r
	}
	return &out
}

// NewDisputeID mints a time-ordered dispute id (UUIDv7).
func NewDisputeID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "dsp_" + uuid.New().String()
	}
	return "dsp_" + id.String()
}

// invariant checks the resolution coupling and the description minimum.
func invariant(state State, hasResolution bool, t Type, description string) *validate.Issue {
	switch {
	case state.Terminal() && !hasResolution:
		return &validate.Issue{Code: codes.DisputeResolutionRequired, Field: "evidence.resolution",
			Message: fmt.Sprintf("state %q requires a resolution", state)}
	case !state.Terminal() && hasResolution:
		return &validate.Issue{Code: codes.DisputeResolutionNotAllowed, Field: "evidence.resolution",
			Message: fmt.Sprintf("state %q must not carry a resolution", state)}
	case t == TypeOther && utf8.RuneCountInString(description) < MinOtherDescription:
		return &validate.Issue{Code: codes.DisputeDescriptionTooShort, Field: "evidence.description",
			Message: fmt.Sprintf("disputes of type other need a description of at least %d characters", MinOtherDescription)}
	}
	return nil
}

// ValidateEvidence checks the evidence-level invariants of a directly
// constructed Evidence value.
func ValidateEvidence(ev Evidence) error {
	if !ev.State.Valid() {
		return &validate.Error{Issue: validate.Issue{Code: codes.DisputeInvalidFormat, Field: "evidence.state",
			Message: fmt.Sprintf("unknown state %q", ev.State)}}
	}
	if is := invariant(ev.State, ev.Resolution != nil, ev.DisputeType, ev.Description); is != nil {
		return &validate.Error{Issue: *is}
	}
	return nil
}

// ValidateAttestationOrdered checks a dispute attestation: object shape,
// state, resolution coupling, description minimum, then the full schema.
func ValidateAttestationOrdered(input any) validate.Result[Attestation] {
	fail := func(code codes.Code, field, msg string) validate.Result[Attestation] {
		return validate.Fail[Attestation](code, field, msg, nil)
	}

	doc, err := schema.Normalize(input)
	if err != nil {
		return fail(codes.DisputeInvalidFormat, "", err.Error())
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return fail(codes.DisputeInvalidFormat, "", "dispute attestation must be an object")
	}
	ev, ok := obj["evidence"].(map[string]any)
	if !ok {
		return fail(codes.DisputeInvalidFormat, "evidence", "evidence must be an object")
	}
	s, _ := ev["state"].(string)
	state := State(s)
	if !state.Valid() {
		return fail(codes.DisputeInvalidFormat, "evidence.state", fmt.Sprintf("unknown state %q", s))
	}
	_, hasResolution := ev["resolution"]
	t, _ := ev["dispute_type"].(string)
	desc, _ := ev["description"].(string)
	if is := invariant(state, hasResolution, Type(t), desc); is != nil {
		return fail(is.Code, is.Field, is.Message)
	}

	if f := schema.Check(schema.DisputeAttestation, obj); f != nil {
		return fail(codes.DisputeInvalidFormat, f.Field, f.Message)
	}

	var a Attestation
	raw, _ := json.Marshal(obj)
	if err := json.Unmarshal(raw, &a); err != nil {
		return fail(codes.DisputeInvalidFormat, "", err.Error())
	}
	return validate.OK(&a, nil)
}

// ValidateAttestation is the throwing form of ValidateAttestationOrdered.
func ValidateAttestation(input any) (*Attestation, error) {
	return ValidateAttestationOrdered(input).Unwrap()
}

// ValidateAttestationCompat is the warnings-free form.
func ValidateAttestationCompat(input any) validate.Compat {
	return ValidateAttestationOrdered(input).Compat()
}
