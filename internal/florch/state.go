package florch

type State string

const (
	StateIdle              State = "Idle"
	StateAssembling        State = "Assembling"
	StateStartingPeers     State = "StartingPeers"
	StateStartingInitiator State = "StartingInitiator"
	StateRunning           State = "Running"
	StateShuttingDown      State = "ShuttingDown"
	StateTerminated        State = "Terminated"
)

var allStates = []string{
	string(StateIdle),
	string(StateAssembling),
	string(StateStartingPeers),
	string(StateStartingInitiator),
	string(StateRunning),
	string(StateShuttingDown),
	string(StateTerminated),
}

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateIdle:              {StateAssembling, StateTerminated},
	StateAssembling:        {StateStartingPeers, StateRunning, StateShuttingDown, StateTerminated},
	StateStartingPeers:     {StateStartingInitiator, StateShuttingDown},
	StateStartingInitiator: {StateRunning, StateShuttingDown},
	StateRunning:           {StateShuttingDown},
	StateShuttingDown:      {StateTerminated},
}

func canTransition(from State, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Stoppable reports whether a shutdown has anything left to do.
func (state State) Stoppable() bool {
	return state != StateIdle && state != StateShuttingDown && state != StateTerminated
}
