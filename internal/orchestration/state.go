package orchestration

import "fmt"

// State is the lifecycle stage of one generation request.
type State string

const (
	StateReceived   State = "received"
	StateCurating   State = "curating"
	StateGenerating State = "generating"
	StateValidating State = "validating"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// validTransitions encodes the request lifecycle. Curation is optional, so
// received may advance straight to generating. Completed and failed are
// terminal.
var validTransitions = map[State][]State{
	StateReceived:   {StateCurating, StateGenerating, StateFailed},
	StateCurating:   {StateGenerating, StateFailed},
	StateGenerating: {StateValidating, StateFailed},
	StateValidating: {StateCompleted, StateFailed},
	StateCompleted:  {},
	StateFailed:     {},
}

// validateTransition checks whether a state change is allowed.
func validateTransition(current, next State) error {
	allowedNext, exists := validTransitions[current]
	if !exists {
		return fmt.Errorf("invalid current state: %s", current)
	}
	for _, allowed := range allowedNext {
		if allowed == next {
			return nil
		}
	}
	return fmt.Errorf("invalid state transition from %s to %s", current, next)
}
