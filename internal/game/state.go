package game

import (
	"fmt"
	"strings"
)

// State is the engine's position in its lifecycle.
type State int

const (
	StateStart State = iota
	StateRunning
	StatePause
	StateGameOver
	// StateTerminated is a sink: once entered the engine accepts nothing.
	StateTerminated
)

var stateNames = [...]string{
	StateStart:      "start",
	StateRunning:    "running",
	StatePause:      "pause",
	StateGameOver:   "gameover",
	StateTerminated: "terminated",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) valid() bool {
	return s >= 0 && int(s) < len(stateNames)
}

// Action is a class of command the engine may honor.
type Action uint8

const (
	ActionStart Action = iota
	ActionPause
	ActionReset
	ActionMove
	ActionResize
	numActions
)

var actionNames = [...]string{
	ActionStart:  "start",
	ActionPause:  "pause",
	ActionReset:  "reset",
	ActionMove:   "move",
	ActionResize: "resize",
}

func (a Action) String() string {
	if a >= numActions {
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
	return actionNames[a]
}

// ActionSet is a bit set of actions.
type ActionSet uint8

func NewActionSet(actions ...Action) ActionSet {
	var s ActionSet
	for _, a := range actions {
		s |= 1 << a
	}
	return s
}

func (s ActionSet) Has(a Action) bool {
	return s&(1<<a) != 0
}

// Actions lists the members in declaration order.
func (s ActionSet) Actions() []Action {
	var out []Action
	for a := Action(0); a < numActions; a++ {
		if s.Has(a) {
			out = append(out, a)
		}
	}
	return out
}

func (s ActionSet) String() string {
	names := make([]string, 0, numActions)
	for _, a := range s.Actions() {
		names = append(names, a.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}

// allowedActions is the single source of truth for which commands each
// state honors.
var allowedActions = [...]ActionSet{
	StateStart:      NewActionSet(ActionStart, ActionResize),
	StateRunning:    NewActionSet(ActionPause, ActionReset, ActionMove),
	StatePause:      NewActionSet(ActionStart, ActionReset),
	StateGameOver:   NewActionSet(ActionReset),
	StateTerminated: NewActionSet(),
}

// AllowedActions returns the actions honored in state s.
func AllowedActions(s State) ActionSet {
	if !s.valid() {
		return 0
	}
	return allowedActions[s]
}
