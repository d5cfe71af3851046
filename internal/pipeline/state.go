package pipeline

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of an analysis session.
type State int

const (
	// StateIngested - AudioSession accepted, nothing processed yet.
	StateIngested State = iota
	// StateDiarized - speaker segments isolated.
	StateDiarized
	// StateFeaturesExtracted - acoustic features computed ahead of the
	// analyzer fan-out. Only entered when extraction runs sequentially;
	// the concurrent path folds extraction into ANALYZERS_RUNNING and
	// skips this state.
	StateFeaturesExtracted
	// StateAnalyzersRunning - the three analyzers are in flight.
	StateAnalyzersRunning
	// StateFused - indicators assembled into a report.
	StateFused
	// StateComplete - terminal, no modality degraded.
	StateComplete
	// StateCompleteDegraded - terminal, at least one modality degraded.
	StateCompleteDegraded
	// StateFailed - terminal, critical-stage or total fusion failure.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIngested:
		return "INGESTED"
	case StateDiarized:
		return "DIARIZED"
	case StateFeaturesExtracted:
		return "FEATURES_EXTRACTED"
	case StateAnalyzersRunning:
		return "ANALYZERS_RUNNING"
	case StateFused:
		return "FUSED"
	case StateComplete:
		return "COMPLETE"
	case StateCompleteDegraded:
		return "COMPLETE_DEGRADED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true for COMPLETE, COMPLETE_DEGRADED and FAILED.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateCompleteDegraded || s == StateFailed
}

// Errors for invalid state transitions.
var (
	ErrSessionTerminal   = errors.New("session is in a terminal state")
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrStateRegression   = errors.New("session already past this state")
)

// Lifecycle manages the state machine for a single session.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	INGESTED → DIARIZED → FEATURES_EXTRACTED → ANALYZERS_RUNNING → FUSED
//	                                                                 │
//	                              COMPLETE | COMPLETE_DEGRADED  ←────┘
//
// Fail() is allowed from any non-terminal state. Forward transitions must
// follow the order above. FEATURES_EXTRACTED belongs to a sequential
// extraction mode; the orchestrator runs extraction inside the analyzer
// fan-out and advances DIARIZED → ANALYZERS_RUNNING directly, which the
// machine permits.
type Lifecycle struct {
	mu        sync.RWMutex
	sessionId string
	state     State
	reason    string
}

// NewLifecycle creates a new session lifecycle in INGESTED state.
func NewLifecycle(sessionId string) *Lifecycle {
	return &Lifecycle{
		sessionId: sessionId,
		state:     StateIngested,
	}
}

// SessionId returns the session ID.
func (l *Lifecycle) SessionId() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sessionId
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// FailureReason returns the reason recorded by Fail, if any.
func (l *Lifecycle) FailureReason() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reason
}

// IsTerminal returns true once the session reached a terminal state.
func (l *Lifecycle) IsTerminal() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.IsTerminal()
}

// Advance moves the session to the next forward state. Skipping
// FEATURES_EXTRACTED is the only permitted jump.
func (l *Lifecycle) Advance(next State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.IsTerminal() {
		return ErrSessionTerminal
	}
	if next.IsTerminal() {
		return ErrInvalidTransition
	}
	if next <= l.state {
		return ErrStateRegression
	}
	// The acoustic stage may be excluded without aborting the session.
	if next-l.state > 1 && !(l.state == StateDiarized && next == StateAnalyzersRunning) {
		return ErrInvalidTransition
	}
	l.state = next
	return nil
}

// Complete moves a FUSED session to its terminal success state.
func (l *Lifecycle) Complete(degraded bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.IsTerminal() {
		return ErrSessionTerminal
	}
	if l.state != StateFused {
		return ErrInvalidTransition
	}
	if degraded {
		l.state = StateCompleteDegraded
	} else {
		l.state = StateComplete
	}
	return nil
}

// Fail moves the session to FAILED with a reason. Allowed from any
// non-terminal state. Returns false if already terminal.
func (l *Lifecycle) Fail(reason string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return false
	}
	l.state = StateFailed
	l.reason = reason
	return true
}
