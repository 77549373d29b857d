package dispute

import (
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peacprotocol/peac/core/pkg/codes"
	"github.com/peacprotocol/peac/core/pkg/schema"
	"github.com/peacprotocol/peac/core/pkg/validate"
)

var fixedNow = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func resolution() *Resolution {
	return &Resolution{
		Outcome:   OutcomeUpheld,
		DecidedAt: "2026-01-20T00:00:00Z",
		DecidedBy: "https://arbiter.example",
		Rationale: "receipt signature did not verify",
	}
}

func attestation(state State, res *Resolution) *Attestation {
	return &Attestation{
		Type:     AttestationType,
		Issuer:   "https://publisher.example",
		IssuedAt: "2026-01-10T00:00:00Z",
		Evidence: Evidence{
			DisputeID:   "dsp_01HZX5K3N7Q9R2S4T6V8W0Y1Z3",
			DisputeType: TypeReceiptInvalid,
			TargetRef:   "rcpt_01",
			TargetType:  "receipt",
			Grounds:     []Ground{{Code: "signature_invalid", Details: "kid not in JWKS"}},
			Description: "Receipt signature fails verification",
			State:       state,
			Resolution:  res,
		},
	}
}

func machine() *Machine {
	return NewMachine().WithClock(func() time.Time { return fixedNow })
}

// literal copy of the table, kept separate from the implementation
var table = map[State][]State{
	"filed":        {"acknowledged", "rejected"},
	"acknowledged": {"under_review", "rejected"},
	"under_review": {"resolved", "escalated"},
	"escalated":    {"resolved"},
	"resolved":     {"appealed", "final"},
	"rejected":     {"appealed", "final"},
	"appealed":     {"under_review", "final"},
	"final":        {},
}

func TestCanTransitionTo_MatchesTable(t *testing.T) {
	for _, from := range States() {
		for _, to := range States() {
			want := false
			for _, allowed := range table[from] {
				if allowed == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransitionTo(from, to), "%s -> %s", from, to)
		}
		assert.False(t, CanTransitionTo(from, from), "self transition %s", from)
	}
	assert.Empty(t, AllowedTransitions(StateFinal))
	assert.False(t, CanTransitionTo("bogus", StateFiled))
}

func TestTerminal(t *testing.T) {
	var terminal []State
	for _, s := range States() {
		if s.Terminal() {
			terminal = append(terminal, s)
		}
	}
	assert.Equal(t, []State{StateResolved, StateRejected, StateFinal}, terminal)
}

func TestTransition_ResolvedToAppealedClearsResolution(t *testing.T) {
	in := attestation(StateResolved, resolution())
	out, err := TransitionDisputeState(in, StateAppealed, "new evidence", nil)
	require.NoError(t, err)

	assert.Equal(t, StateAppealed, out.Evidence.State)
	assert.Nil(t, out.Evidence.Resolution)
	assert.Equal(t, "new evidence", out.Evidence.StateReason)
	assert.Nil(t, schema.Check(schema.DisputeAttestation, out))

	assert.NotNil(t, in.Evidence.Resolution, "input must not be modified")
	assert.Equal(t, StateResolved, in.Evidence.State)
}

func TestTransition_EveryAllowedEdge(t *testing.T) {
	m := machine()
	for from, tos := range table {
		for _, to := range tos {
			var start *Resolution
			if from.Terminal() {
				start = resolution()
			}
			in := attestation(from, start)

			if to.Terminal() {
				_, err := m.Transition(in, to, "", nil)
				var te *TransitionError
				require.True(t, errors.As(err, &te), "%s -> %s", from, to)
				assert.Equal(t, codes.ResolutionRequired, te.Code)

				out, err := m.Transition(in, to, "", resolution())
				require.NoError(t, err, "%s -> %s", from, to)
				require.NotNil(t, out.Evidence.Resolution)
				assert.Nil(t, schema.Check(schema.DisputeAttestation, out))
				continue
			}

			_, err := m.Transition(in, to, "", resolution())
			var te *TransitionError
			require.True(t, errors.As(err, &te), "%s -> %s", from, to)
			assert.Equal(t, codes.ResolutionNotAllowed, te.Code)

			out, err := m.Transition(in, to, "", nil)
			require.NoError(t, err, "%s -> %s", from, to)
			assert.Nil(t, out.Evidence.Resolution)
			assert.Equal(t, "2026-02-01T12:00:00Z", out.Evidence.StateChangedAt)
			assert.Nil(t, schema.Check(schema.DisputeAttestation, out))
		}
	}
}

func TestTransition_Invalid(t *testing.T) {
	m := machine()
	_, err := m.Transition(attestation(StateFiled, nil), StateResolved, "", resolution())
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, codes.InvalidTransition, te.Code)
	assert.Contains(t, err.Error(), "filed -> resolved")

	_, err = m.Transition(attestation(StateFinal, resolution()), StateAppealed, "", nil)
	require.True(t, errors.As(err, &te))
	assert.Equal(t, codes.InvalidTransition, te.Code)

	// table membership is checked before resolution coupling
	_, err = m.Transition(attestation(StateFiled, nil), StateFinal, "", nil)
	require.True(t, errors.As(err, &te))
	assert.Equal(t, codes.InvalidTransition, te.Code)
}

func TestTransition_RejectsInvalidInput(t *testing.T) {
	in := attestation(StateFiled, nil)
	in.Issuer = ""
	_, err := machine().Transition(in, StateAcknowledged, "", nil)
	require.Error(t, err)
	var verr *validate.Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, codes.DisputeInvalidFormat, verr.Code)
}

func TestTransition_NilAttestation(t *testing.T) {
	out, err := machine().Transition(nil, StateAcknowledged, "", nil)
	assert.Nil(t, out)
	var verr *validate.Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, codes.DisputeInvalidFormat, verr.Code)

	_, err = TransitionDisputeState(nil, StateRejected, "", resolution())
	assert.Error(t, err)
}

func TestTransition_ReplacesStaleReason(t *testing.T) {
	in := attestation(StateFiled, nil)
	in.Evidence.StateReason = "initial"
	out, err := machine().Transition(in, StateAcknowledged, "", nil)
	require.NoError(t, err)
	assert.Empty(t, out.Evidence.StateReason)
}

func TestValidateEvidence(t *testing.T) {
	require.NoError(t, ValidateEvidence(attestation(StateFiled, nil).Evidence))
	require.NoError(t, ValidateEvidence(attestation(StateFinal, resolution()).Evidence))

	code := func(err error) codes.Code {
		var verr *validate.Error
		require.True(t, errors.As(err, &verr))
		return verr.Code
	}
	assert.Equal(t, codes.DisputeResolutionRequired, code(ValidateEvidence(attestation(StateRejected, nil).Evidence)))
	assert.Equal(t, codes.DisputeResolutionNotAllowed, code(ValidateEvidence(attestation(StateUnderReview, resolution()).Evidence)))
	assert.Equal(t, codes.DisputeInvalidFormat, code(ValidateEvidence(attestation("limbo", nil).Evidence)))

	ev := attestation(StateFiled, nil).Evidence
	ev.DisputeType = TypeOther
	ev.Description = strings.Repeat("x", 49)
	assert.Equal(t, codes.DisputeDescriptionTooShort, code(ValidateEvidence(ev)))

	// counted in characters, not bytes
	ev.Description = strings.Repeat("é", 49)
	assert.Equal(t, codes.DisputeDescriptionTooShort, code(ValidateEvidence(ev)))
	ev.Description = strings.Repeat("é", 50)
	assert.NoError(t, ValidateEvidence(ev))
}

func TestValidateAttestationOrdered(t *testing.T) {
	r := ValidateAttestationOrdered(attestation(StateResolved, resolution()))
	require.True(t, r.Valid, r.Err)
	assert.Equal(t, OutcomeUpheld, r.Value.Evidence.Resolution.Outcome)

	tests := []struct {
		name  string
		input any
		code  codes.Code
		field string
	}{
		{"not object", []any{}, codes.DisputeInvalidFormat, ""},
		{"no evidence", map[string]any{"type": AttestationType}, codes.DisputeInvalidFormat, "evidence"},
		{"unknown state", attestation("limbo", nil), codes.DisputeInvalidFormat, "evidence.state"},
		{"coupling beats schema", func() any {
			a := attestation(StateResolved, nil)
			a.Issuer = ""
			return a
		}(), codes.DisputeResolutionRequired, "evidence.resolution"},
		{"resolution on open dispute", attestation(StateEscalated, resolution()), codes.DisputeResolutionNotAllowed, "evidence.resolution"},
		{"schema", func() any {
			a := attestation(StateFiled, nil)
			a.Evidence.Grounds = nil
			return a
		}(), codes.DisputeInvalidFormat, "evidence.grounds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ValidateAttestationOrdered(tt.input)
			require.False(t, r.Valid)
			assert.Equal(t, tt.code, r.ErrorCode())
			assert.Equal(t, tt.field, r.Err.Field)
			assert.Equal(t, r.Compat().ErrorCode, ValidateAttestationCompat(tt.input).ErrorCode)
		})
	}
}

func TestNewDisputeID(t *testing.T) {
	re := regexp.MustCompile(`^dsp_[a-zA-Z0-9_-]{20,48}$`)
	a, b := NewDisputeID(), NewDisputeID()
	assert.Regexp(t, re, a)
	assert.NotEqual(t, a, b)

	att := attestation(StateFiled, nil)
	att.Evidence.DisputeID = a
	_, err := ValidateAttestation(att)
	assert.NoError(t, err)
}
