// Package dispute implements dispute attestations and their state machine.
//
// A dispute moves through a fixed transition table. Terminal states carry a
// resolution; all other states must not.
package dispute

// State is a dispute lifecycle state.
type State string

const (
	StateFiled        State = "filed"
	StateAcknowledged State = "acknowledged"
	StateUnderReview  State = "under_review"
	StateEscalated    State = "escalated"
	StateResolved     State = "resolved"
	StateRejected     State = "rejected"
	StateAppealed     State = "appealed"
	StateFinal        State = "final"
)

// States returns every state in lifecycle order.
func States() []State {
	return []State{
		StateFiled, StateAcknowledged, StateUnderReview, StateEscalated,
		StateResolved, StateRejected, StateAppealed, StateFinal,
	}
}

var transitions = map[State][]State{
	StateFiled:        {StateAcknowledged, StateRejected},
	StateAcknowledged: {StateUnderReview, StateRejected},
	StateUnderReview:  {StateResolved, StateEscalated},
	StateEscalated:    {StateResolved},
	StateResolved:     {StateAppealed, StateFinal},
	StateRejected:     {StateAppealed, StateFinal},
	StateAppealed:     {StateUnderReview, StateFinal},
	StateFinal:        {},
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s requires a resolution.
func (s State) Terminal() bool {
	return s == StateResolved || s == StateRejected || s == StateFinal
}

// AllowedTransitions returns the states reachable from s in one step.
func AllowedTransitions(s State) []State {
	return append([]State(nil), transitions[s]...)
}

// CanTransitionTo reports whether from -> to is in the transition table.
func CanTransitionTo(from, to State) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
