package control

import "fmt"

// Phase is the approach state
type Phase int

const (
	Searching Phase = iota + 1
	Approaching
	HoldingClose
	Advancing
	Watering
	Retreating
	Done
)

func (p Phase) String() string {
	switch p {
	case Searching:
		return "SEARCHING"
	case Approaching:
		return "APPROACHING"
	case HoldingClose:
		return "HOLDING_CLOSE"
	case Advancing:
		return "ADVANCING"
	case Watering:
		return "WATERING"
	case Retreating:
		return "RETREATING"
	case Done:
		return "DONE"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// InSequence reports whether p belongs to the timed close-range sequence
func (p Phase) InSequence() bool {
	return p >= HoldingClose && p <= Retreating
}
