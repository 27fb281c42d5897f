package roundabout

import "fmt"

// ActionKind kind of per-step car action
type ActionKind uint8

const (
	// ACTION_STRAIGHT continue along the current lane toward the destination angle
	ACTION_STRAIGHT = ActionKind(iota + 1)
	// ACTION_SWITCH radial transition to an adjacent lane
	ACTION_SWITCH
	// ACTION_STOP no motion this step
	ACTION_STOP
)

func (iotaIdx ActionKind) String() string {
	return [...]string{"undefined", "straight", "switch", "stop"}[iotaIdx]
}

// Action pending action of a car for the current step.
// For ACTION_SWITCH the Dir field carries the signed lane step:
// +1 means one lane inward, -1 means one lane outward.
type Action struct {
	Kind ActionKind
	Dir  int
}

var (
	// Straight continue along the current lane
	Straight = Action{Kind: ACTION_STRAIGHT}
	// Stop no motion
	Stop = Action{Kind: ACTION_STOP}
	// SwitchIn switch one lane inward
	SwitchIn = Action{Kind: ACTION_SWITCH, Dir: 1}
	// SwitchOut switch one lane outward
	SwitchOut = Action{Kind: ACTION_SWITCH, Dir: -1}
)

// Switch returns switch action for the given signed lane step.
// Dir == 0 is the halted-switch sentinel and normalizes to Stop.
func Switch(dir int) Action {
	if dir == 0 {
		return Stop
	}
	return Action{Kind: ACTION_SWITCH, Dir: dir}
}

// String returns pretty printed value for Action
func (a Action) String() string {
	if a.Kind == ACTION_SWITCH {
		return fmt.Sprintf("%s(%d)", a.Kind, a.Dir)
	}
	return a.Kind.String()
}
