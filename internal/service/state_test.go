package service

import (
	"errors"
	"testing"

	"github.com/sakif/devfolio-web/internal/apperror"
)

func TestSlot_BeginPublishesLoading(t *testing.T) {
	var s Slot[string]
	if got := s.State().Phase; got != "" && got != PhaseIdle {
		t.Fatalf("zero Slot phase = %q", got)
	}

	id := s.Begin("octocat")
	st := s.State()
	if st.Phase != PhaseLoading || st.Key != "octocat" || st.RequestID != id {
		t.Errorf("State() = %+v, want loading octocat #%d", st, id)
	}
}

func TestSlot_SettleReadyAndFailed(t *testing.T) {
	var s Slot[string]

	id := s.Begin("a")
	if !s.Settle(id, "data", nil) {
		t.Fatal("Settle() of the latest request returned false")
	}
	if st := s.State(); st.Phase != PhaseReady || st.Data != "data" {
		t.Errorf("State() = %+v, want ready with data", st)
	}

	id = s.Begin("b")
	s.Settle(id, "", apperror.PrivateProfile("b"))
	st := s.State()
	if st.Phase != PhaseFailed {
		t.Fatalf("Phase = %q, want failed", st.Phase)
	}
	if st.Kind() != apperror.KindPrivateProfile {
		t.Errorf("Kind() = %q, want %q", st.Kind(), apperror.KindPrivateProfile)
	}
}

func TestSlot_ForeignErrorsBecomeUnknown(t *testing.T) {
	var s Slot[int]
	id := s.Begin("k")
	s.Settle(id, 0, errors.New("boom"))

	st := s.State()
	if st.Kind() != apperror.KindUnknown {
		t.Errorf("Kind() = %q, want unknown", st.Kind())
	}
	if st.Err.Error() != "boom" {
		t.Errorf("Err = %q, want %q", st.Err, "boom")
	}
}

// Request A then B on the same slot, B issued before A resolves: only B is
// ever observed as terminal, whichever order they complete in.
func TestSlot_StaleResponseIsDropped(t *testing.T) {
	tests := []struct {
		name   string
		aFirst bool
	}{
		{"A completes first", true},
		{"B completes first", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Slot[string]
			a := s.Begin("same")
			b := s.Begin("same")

			if tt.aFirst {
				if s.Settle(a, "A", nil) {
					t.Error("Settle(A) applied after B began")
				}
				if st := s.State(); st.Phase != PhaseLoading {
					t.Errorf("after stale A, Phase = %q, want loading", st.Phase)
				}
				s.Settle(b, "B", nil)
			} else {
				s.Settle(b, "B", nil)
				if s.Settle(a, "A", nil) {
					t.Error("Settle(A) applied after B settled")
				}
			}

			if st := s.State(); st.Data != "B" || st.RequestID != b {
				t.Errorf("State() = %+v, want B's result", st)
			}
		})
	}
}

func TestSlot_TerminalIsFinal(t *testing.T) {
	var s Slot[string]
	id := s.Begin("k")
	s.Settle(id, "first", nil)
	if s.Settle(id, "second", apperror.Unknown("x")) {
		t.Error("second Settle() for the same id returned true")
	}
	if st := s.State(); st.Data != "first" || st.Phase != PhaseReady {
		t.Errorf("State() = %+v, want the first result", st)
	}
}

func TestSlot_Reset(t *testing.T) {
	var s Slot[string]
	id := s.Begin("k")
	s.Reset()

	if s.Settle(id, "late", nil) {
		t.Error("Settle() after Reset() applied a stale result")
	}
	if st := s.State(); st.Phase != PhaseIdle {
		t.Errorf("Phase = %q, want idle", st.Phase)
	}
}

func TestRequestState_KindOnlyWhenFailed(t *testing.T) {
	st := RequestState[int]{Phase: PhaseReady, Err: apperror.Unknown("ignored")}
	if st.Kind() != apperror.KindNone {
		t.Errorf("Kind() = %q for a ready state, want none", st.Kind())
	}
}
