package capture

// State is the recording session state.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StatePaused    State = "paused"
)

// Action is a session command.
type Action string

const (
	ActionStart  Action = "start"
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionStop   Action = "stop"
	ActionCancel Action = "cancel"
)

var transitions = map[State]map[Action]State{
	StateIdle: {
		ActionStart: StateRecording,
	},
	StateRecording: {
		ActionPause:  StatePaused,
		ActionStop:   StateIdle,
		ActionCancel: StateIdle,
	},
	StatePaused: {
		ActionResume: StateRecording,
		ActionStop:   StateIdle,
		ActionCancel: StateIdle,
	},
}

// Next returns the state reached by applying action, if the transition exists.
func (s State) Next(action Action) (State, bool) {
	next, ok := transitions[s][action]
	return next, ok
}

func (s State) String() string {
	return string(s)
}
