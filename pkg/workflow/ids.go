package workflow

import (
	"github.com/google/uuid"
)

// NewWorkflowID mints a time-ordered workflow id (UUIDv7).
func NewWorkflowID() string {
	return "wf_" + newV7()
}

// NewStepID mints a time-ordered step id (UUIDv7).
func NewStepID() string {
	return "step_" + newV7()
}

func newV7() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does.
		return uuid.New().String()
	}
	return id.String()
}
