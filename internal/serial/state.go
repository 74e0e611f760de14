package serial

import "fmt"

// State is the lifecycle position of a Session.
//
//	Idle ──▶ Opening ──▶ Open ──▶ Closing ──▶ Closed
//	  │         │          │
//	  │         ├──▶ Failed ◀┘
//	  │         └──▶ Closing
//	  └──▶ Closed
//
// Failed and Closed are terminal.
type State int

const (
	Idle State = iota
	Opening
	Open
	Closing
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Opening:
		return "opening"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Closed || s == Failed
}

var transitions = map[State][]State{
	Idle:    {Opening, Closed},
	Opening: {Open, Failed, Closing},
	Open:    {Closing, Failed},
	Closing: {Closed},
}

// CanTransition reports whether from → to is a legal session transition.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
