package session

// State is the call session's position in the conversation state
// machine.
type State string

const (
	// StateConnecting covers the window between telephony answer and
	// the adapters coming up.
	StateConnecting State = "connecting"

	// StateListening means the caller has the floor.
	StateListening State = "listening"

	// StateThinking means the engine is producing the agent's reply.
	StateThinking State = "thinking"

	// StateSpeaking means agent audio is streaming to the caller.
	StateSpeaking State = "speaking"

	// StateInterrupting is the transient flush between a detected
	// barge-in and returning the floor to the caller.
	StateInterrupting State = "interrupting"

	// StateEnded is terminal.
	StateEnded State = "ended"
)

// validTransitions encodes the state graph. Ended is reachable from
// every state, handled separately in transition().
var validTransitions = map[State][]State{
	StateConnecting:   {StateListening},
	StateListening:    {StateThinking},
	StateThinking:     {StateSpeaking},
	StateSpeaking:     {StateInterrupting, StateListening},
	StateInterrupting: {StateListening},
	StateEnded:        {},
}

func canTransition(from, to State) bool {
	if to == StateEnded {
		return from != StateEnded
	}
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
