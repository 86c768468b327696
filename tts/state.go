package tts

// StateType represents the playback state of a session.
type StateType int

const (
	// StateIdle indicates no session is active.
	StateIdle StateType = iota
	// StatePlaying indicates an utterance is being spoken.
	StatePlaying
	// StatePaused indicates the engine is suspended mid-session.
	StatePaused
	// StateStopped indicates the session is being torn down.
	StateStopped
)

// String returns the string representation of the state.
func (s StateType) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StateMachine guards playback state transitions.
type StateMachine struct {
	current     StateType
	transitions map[StateType][]StateType
	onEnter     map[StateType]func()
	onExit      map[StateType]func()
}

// NewStateMachine creates a state machine in StateIdle.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		transitions: map[StateType][]StateType{
			StateIdle:    {StatePlaying},
			StatePlaying: {StatePaused, StateStopped, StateIdle},
			StatePaused:  {StatePlaying, StateStopped},
			StateStopped: {StateIdle},
		},
		onEnter: make(map[StateType]func()),
		onExit:  make(map[StateType]func()),
	}
}

// CanTransition reports whether moving to the given state is allowed.
func (sm *StateMachine) CanTransition(to StateType) bool {
	for _, state := range sm.transitions[sm.current] {
		if state == to {
			return true
		}
	}
	return false
}

// Transition attempts to move to the given state and runs the exit and
// enter hooks when it does.
func (sm *StateMachine) Transition(to StateType) bool {
	if !sm.CanTransition(to) {
		return false
	}

	if exitFn, ok := sm.onExit[sm.current]; ok && exitFn != nil {
		exitFn()
	}

	sm.current = to

	if enterFn, ok := sm.onEnter[to]; ok && enterFn != nil {
		enterFn()
	}

	return true
}

// Current returns the current state.
func (sm *StateMachine) Current() StateType {
	return sm.current
}

// OnEnter registers a callback for entering a state.
func (sm *StateMachine) OnEnter(state StateType, fn func()) {
	sm.onEnter[state] = fn
}

// OnExit registers a callback for exiting a state.
func (sm *StateMachine) OnExit(state StateType, fn func()) {
	sm.onExit[state] = fn
}
