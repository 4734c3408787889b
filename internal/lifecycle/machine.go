// Package lifecycle models the recording lifecycle as a pure state machine.
// It holds no I/O; transient states make rapid repeated input idempotent.
package lifecycle

import "sync"

// State is one node of the recording lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateStarting  State = "starting"
	StateRecording State = "recording"
	StatePausing   State = "pausing"
	StatePaused    State = "paused"
	StateResuming  State = "resuming"
	StateStopping  State = "stopping"
	StateStopped   State = "stopped"
	StateError     State = "error"
)

// Event is a named transition request.
type Event string

const (
	EventStart         Event = "START"
	EventStartSuccess  Event = "START_SUCCESS"
	EventStartFailure  Event = "START_FAILURE"
	EventPause         Event = "PAUSE"
	EventPauseSuccess  Event = "PAUSE_SUCCESS"
	EventResume        Event = "RESUME"
	EventResumeSuccess Event = "RESUME_SUCCESS"
	EventStop          Event = "STOP"
	EventStopSuccess   Event = "STOP_SUCCESS"
)

var transitions = map[State]map[Event]State{
	StateIdle: {
		EventStart: StateStarting,
	},
	StateStarting: {
		EventStartSuccess: StateRecording,
		EventStartFailure: StateIdle,
	},
	StateRecording: {
		EventPause: StatePausing,
		EventStop:  StateStopping,
	},
	StatePausing: {
		EventPauseSuccess: StatePaused,
	},
	StatePaused: {
		EventResume: StateResuming,
		EventStop:   StateStopping,
	},
	StateResuming: {
		EventResumeSuccess: StateRecording,
	},
	StateStopping: {
		EventStopSuccess: StateStopped,
	},
	StateStopped: {
		EventStart: StateStarting,
	},
	StateError: {
		EventStart: StateStarting,
	},
}

// transient states are "in flight": all guard predicates return false while
// one is current, so double-clicks cannot double-dispatch.
var transient = map[State]bool{
	StateStarting: true,
	StatePausing:  true,
	StateResuming: true,
	StateStopping: true,
}

// Machine validates lifecycle events against the current state. Invalid
// requests are no-ops; callers use the guard predicates to disable
// affordances instead of relying on errors.
type Machine struct {
	mu      sync.Mutex
	state   State
	lastErr error
}

func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the error recorded by the most recent failure, if any.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Apply requests a transition. It returns the resulting state and whether
// the event was valid in the current state.
func (m *Machine) Apply(event Event) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, ok := transitions[m.state][event]
	if !ok {
		return m.state, false
	}
	m.state = next
	if event == EventStart {
		m.lastErr = nil
	}
	return next, true
}

// ApplyFailure records an error payload alongside the transition. For
// START_FAILURE this returns the machine to Idle; any other event aborts the
// current transient state into Error.
func (m *Machine) ApplyFailure(event Event, err error) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if event == EventStartFailure {
		next, ok := transitions[m.state][event]
		if !ok {
			return m.state, false
		}
		m.state = next
		m.lastErr = err
		return next, true
	}

	if !transient[m.state] {
		return m.state, false
	}
	m.state = StateError
	m.lastErr = err
	return StateError, true
}

// Reset returns the machine to Idle for a fresh session.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateIdle
	m.lastErr = nil
}

// CanStart reports whether a START request would be accepted.
func (m *Machine) CanStart() bool { return m.allows(EventStart) }

// CanPause reports whether a PAUSE request would be accepted.
func (m *Machine) CanPause() bool { return m.allows(EventPause) }

// CanResume reports whether a RESUME request would be accepted.
func (m *Machine) CanResume() bool { return m.allows(EventResume) }

// CanStop reports whether a STOP request would be accepted.
func (m *Machine) CanStop() bool { return m.allows(EventStop) }

func (m *Machine) allows(event Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if transient[m.state] {
		return false
	}
	_, ok := transitions[m.state][event]
	return ok
}
