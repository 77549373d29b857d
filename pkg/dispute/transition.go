package dispute

import (
	"fmt"
	"time"

	"github.com/peacprotocol/peac/core/pkg/codes"
	"github.com/peacprotocol/peac/core/pkg/validate"
)

// TransitionError reports a rejected state change.
type TransitionError struct {
	Code codes.Code
	From State
	To   State
}

func (e *TransitionError) Error() string {
	switch e.Code {
	case codes.ResolutionRequired:
		return fmt.Sprintf("%s: transition %s -> %s requires a resolution", e.Code, e.From, e.To)
	case codes.ResolutionNotAllowed:
		return fmt.Sprintf("%s: transition %s -> %s must not carry a resolution", e.Code, e.From, e.To)
	default:
		return fmt.Sprintf("%s: %s -> %s is not allowed", e.Code, e.From, e.To)
	}
}

// Machine applies transitions with a configurable clock.
type Machine struct {
	clock func() time.Time
}

// NewMachine returns a Machine using the wall clock.
func NewMachine() *Machine {
	return &Machine{clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (m *Machine) WithClock(clock func() time.Time) *Machine {
	m.clock = clock
	return m
}

var defaultMachine = NewMachine()

// TransitionDisputeState moves att to target using the wall clock.
func TransitionDisputeState(att *Attestation, target State, reason string, resolution *Resolution) (*Attestation, error) {
	return defaultMachine.Transition(att, target, reason, resolution)
}

// Transition returns a new attestation in state target. att is not
// modified. Moving to a non-terminal state drops any prior resolution;
// moving to a terminal state installs the supplied one. The result is
// re-validated against the full attestation schema before it is returned.
func (m *Machine) Transition(att *Attestation, target State, reason string, resolution *Resolution) (*Attestation, error) {
	if att == nil {
		return nil, &validate.Error{Issue: validate.Issue{Code: codes.DisputeInvalidFormat, Message: "attestation is required"}}
	}
	from := att.Evidence.State
	if !CanTransitionTo(from, target) {
		return nil, &TransitionError{Code: codes.InvalidTransition, From: from, To: target}
	}
	if target.Terminal() && resolution == nil {
		return nil, &TransitionError{Code: codes.ResolutionRequired, From: from, To: target}
	}
	if !target.Terminal() && resolution != nil {
		return nil, &TransitionError{Code: codes.ResolutionNotAllowed, From: from, To: target}
	}

	out := att.Clone()
	out.Evidence.State = target
	out.Evidence.StateChangedAt = m.clock().UTC().Format(time.RFC3339Nano)
	out.Evidence.StateReason = reason
	out.Evidence.Resolution = nil
	if target.Terminal() {
		r := *resolution
		out.Evidence.Resolution = &r
	}

	checked, err := ValidateAttestation(out)
	if err != nil {
		return nil, fmt.Errorf("dispute: transition %s -> %s produced an invalid attestation: %w", from, target, err)
	}
	return checked, nil
}
