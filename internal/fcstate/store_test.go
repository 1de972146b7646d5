package fcstate

import "testing"

func TestForceDisarmVisibleAcrossWriters(t *testing.T) {
	s := New(Config{})
	s.UpdateSetpoint(func(sp *CoreSetpoint) { sp.Mode = Attitude })

	if got := s.Setpoint().Mode; got != Attitude {
		t.Fatalf("expected Attitude, got %v", got)
	}

	s.ForceDisarm()
	if got := s.Setpoint().Mode; got != Disarmed {
		t.Fatalf("expected Disarmed after ForceDisarm, got %v", got)
	}
}

func TestStateOwnedByCore(t *testing.T) {
	s := New(Config{})
	s.UpdateState(func(cs *CoreState) { cs.ControlLoops = 42 })
	if got := s.State().ControlLoops; got != 42 {
		t.Fatalf("expected 42, got %v", got)
	}
}
