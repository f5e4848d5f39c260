package scheduler

// State is the phase a run is in.
type State int32

const (
	StateIdle State = iota
	StateAccumulating
	StateAwaitingSynthesis
	StateDelivering
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateAwaitingSynthesis:
		return "awaiting_synthesis"
	case StateDelivering:
		return "delivering"
	default:
		return "unknown"
	}
}
