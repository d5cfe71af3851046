package pipeline

import (
	"errors"
	"testing"
)

func TestLifecycle_ForwardPath(t *testing.T) {
	l := NewLifecycle("s-1")

	steps := []State{StateDiarized, StateFeaturesExtracted, StateAnalyzersRunning, StateFused}
	for _, next := range steps {
		if err := l.Advance(next); err != nil {
			t.Fatalf("Advance(%s): unexpected error %v", next, err)
		}
		if l.State() != next {
			t.Fatalf("state after Advance: got %s, want %s", l.State(), next)
		}
	}

	if err := l.Complete(false); err != nil {
		t.Fatalf("Complete: unexpected error %v", err)
	}
	if l.State() != StateComplete {
		t.Errorf("terminal state: got %s, want COMPLETE", l.State())
	}
	if !l.IsTerminal() {
		t.Error("completed session must be terminal")
	}
}

func TestLifecycle_SkipFeaturesExtracted(t *testing.T) {
	l := NewLifecycle("s-1")
	if err := l.Advance(StateDiarized); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Advance(StateAnalyzersRunning); err != nil {
		t.Errorf("DIARIZED to ANALYZERS_RUNNING must be permitted: %v", err)
	}
}

func TestLifecycle_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(l *Lifecycle)
		next    State
		wantErr error
	}{
		{
			name:    "skip past diarized",
			prepare: func(l *Lifecycle) {},
			next:    StateFeaturesExtracted,
			wantErr: ErrInvalidTransition,
		},
		{
			name:    "terminal via advance",
			prepare: func(l *Lifecycle) {},
			next:    StateComplete,
			wantErr: ErrInvalidTransition,
		},
		{
			name: "regression",
			prepare: func(l *Lifecycle) {
				l.Advance(StateDiarized)
				l.Advance(StateAnalyzersRunning)
			},
			next:    StateDiarized,
			wantErr: ErrStateRegression,
		},
		{
			name:    "advance after failure",
			prepare: func(l *Lifecycle) { l.Fail("boom") },
			next:    StateDiarized,
			wantErr: ErrSessionTerminal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLifecycle("s-1")
			tt.prepare(l)
			if err := l.Advance(tt.next); !errors.Is(err, tt.wantErr) {
				t.Errorf("Advance(%s): got %v, want %v", tt.next, err, tt.wantErr)
			}
		})
	}
}

func TestLifecycle_CompleteRequiresFused(t *testing.T) {
	l := NewLifecycle("s-1")
	l.Advance(StateDiarized)

	if err := l.Complete(false); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Complete before FUSED: got %v, want ErrInvalidTransition", err)
	}
}

func TestLifecycle_CompleteDegraded(t *testing.T) {
	l := NewLifecycle("s-1")
	l.Advance(StateDiarized)
	l.Advance(StateAnalyzersRunning)
	l.Advance(StateFused)

	if err := l.Complete(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.State() != StateCompleteDegraded {
		t.Errorf("got %s, want COMPLETE_DEGRADED", l.State())
	}
}

func TestLifecycle_FailRecordsReason(t *testing.T) {
	l := NewLifecycle("s-1")

	if !l.Fail("diarization unavailable") {
		t.Fatal("Fail on live session must return true")
	}
	if l.FailureReason() != "diarization unavailable" {
		t.Errorf("reason: got %q", l.FailureReason())
	}
	if l.Fail("second") {
		t.Error("Fail on terminal session must return false")
	}
	if l.FailureReason() != "diarization unavailable" {
		t.Error("terminal failure reason must not be overwritten")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIngested, "INGESTED"},
		{StateAnalyzersRunning, "ANALYZERS_RUNNING"},
		{StateCompleteDegraded, "COMPLETE_DEGRADED"},
		{State(99), "UNKNOWN(99)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String(): got %q, want %q", tt.state, got, tt.want)
		}
	}
}
