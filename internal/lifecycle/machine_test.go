package lifecycle

import (
	"errors"
	"testing"
)

func TestMachineHappyPath(t *testing.T) {
	t.Parallel()

	m := NewMachine()
	steps := []struct {
		event Event
		want  State
	}{
		{EventStart, StateStarting},
		{EventStartSuccess, StateRecording},
		{EventPause, StatePausing},
		{EventPauseSuccess, StatePaused},
		{EventResume, StateResuming},
		{EventResumeSuccess, StateRecording},
		{EventStop, StateStopping},
		{EventStopSuccess, StateStopped},
	}

	for _, step := range steps {
		got, ok := m.Apply(step.event)
		if !ok {
			t.Fatalf("event %s rejected in state %s", step.event, m.State())
		}
		if got != step.want {
			t.Fatalf("event %s: got state %s, want %s", step.event, got, step.want)
		}
	}
}

func TestMachineInvalidEventsAreNoOps(t *testing.T) {
	t.Parallel()

	m := NewMachine()
	for _, event := range []Event{EventPause, EventResume, EventStop, EventStopSuccess} {
		if got, ok := m.Apply(event); ok || got != StateIdle {
			t.Fatalf("event %s should be a no-op in idle, got %s ok=%v", event, got, ok)
		}
	}
}

func TestMachineGuardsMatchReachableTransitions(t *testing.T) {
	t.Parallel()

	all := []State{
		StateIdle, StateStarting, StateRecording, StatePausing,
		StatePaused, StateResuming, StateStopping, StateStopped, StateError,
	}

	for _, state := range all {
		m := &Machine{state: state}

		wantStart := state == StateIdle || state == StateStopped || state == StateError
		wantPause := state == StateRecording
		wantResume := state == StatePaused
		wantStop := state == StateRecording || state == StatePaused

		if m.CanStart() != wantStart {
			t.Fatalf("state %s: CanStart=%v, want %v", state, m.CanStart(), wantStart)
		}
		if m.CanPause() != wantPause {
			t.Fatalf("state %s: CanPause=%v, want %v", state, m.CanPause(), wantPause)
		}
		if m.CanResume() != wantResume {
			t.Fatalf("state %s: CanResume=%v, want %v", state, m.CanResume(), wantResume)
		}
		if m.CanStop() != wantStop {
			t.Fatalf("state %s: CanStop=%v, want %v", state, m.CanStop(), wantStop)
		}
	}
}

func TestMachineTransientStatesBlockAllGuards(t *testing.T) {
	t.Parallel()

	for _, state := range []State{StateStarting, StatePausing, StateResuming, StateStopping} {
		m := &Machine{state: state}
		if m.CanStart() || m.CanPause() || m.CanResume() || m.CanStop() {
			t.Fatalf("state %s: expected all guards false", state)
		}
	}
}

func TestMachineDoubleStartIsIdempotent(t *testing.T) {
	t.Parallel()

	m := NewMachine()
	if _, ok := m.Apply(EventStart); !ok {
		t.Fatalf("first start rejected")
	}
	if _, ok := m.Apply(EventStart); ok {
		t.Fatalf("second start should be rejected while starting")
	}
	if m.State() != StateStarting {
		t.Fatalf("unexpected state: %s", m.State())
	}
}

func TestMachineStartFailureReturnsToIdleWithError(t *testing.T) {
	t.Parallel()

	m := NewMachine()
	m.Apply(EventStart)

	boom := errors.New("mic unavailable")
	got, ok := m.ApplyFailure(EventStartFailure, boom)
	if !ok || got != StateIdle {
		t.Fatalf("expected idle after start failure, got %s ok=%v", got, ok)
	}
	if !errors.Is(m.Err(), boom) {
		t.Fatalf("expected error payload to be recorded")
	}

	// a fresh start clears the stale error
	m.Apply(EventStart)
	if m.Err() != nil {
		t.Fatalf("expected error cleared on new start")
	}
}

func TestMachineFailureFromTransientStatesReachesError(t *testing.T) {
	t.Parallel()

	for _, seq := range [][]Event{
		{EventStart, EventStartSuccess, EventPause},
		{EventStart, EventStartSuccess, EventPause, EventPauseSuccess, EventResume},
		{EventStart, EventStartSuccess, EventStop},
	} {
		m := NewMachine()
		for _, event := range seq {
			m.Apply(event)
		}
		got, ok := m.ApplyFailure(EventStopSuccess, errors.New("backend gone"))
		if !ok || got != StateError {
			t.Fatalf("expected error state from %s, got %s ok=%v", seq[len(seq)-1], got, ok)
		}
	}
}

func TestMachineFailureFromStableStateIsNoOp(t *testing.T) {
	t.Parallel()

	m := NewMachine()
	m.Apply(EventStart)
	m.Apply(EventStartSuccess)

	got, ok := m.ApplyFailure(EventPauseSuccess, errors.New("x"))
	if ok || got != StateRecording {
		t.Fatalf("expected no-op from recording, got %s ok=%v", got, ok)
	}
}

func TestMachineRestartsFromTerminalStates(t *testing.T) {
	t.Parallel()

	for _, state := range []State{StateStopped, StateError} {
		m := &Machine{state: state, lastErr: errors.New("stale")}
		got, ok := m.Apply(EventStart)
		if !ok || got != StateStarting {
			t.Fatalf("state %s: expected restart to starting, got %s ok=%v", state, got, ok)
		}
		if m.Err() != nil {
			t.Fatalf("state %s: expected stale error cleared", state)
		}
	}
}

func TestMachineResetReturnsToIdle(t *testing.T) {
	t.Parallel()

	m := NewMachine()
	m.Apply(EventStart)
	m.Apply(EventStartSuccess)
	m.Apply(EventStop)
	m.Apply(EventStopSuccess)

	m.Reset()
	if m.State() != StateIdle || !m.CanStart() {
		t.Fatalf("expected idle after reset, got %s", m.State())
	}
}
