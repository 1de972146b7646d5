package pidf

import "testing"

func TestMarchDeterministic(t *testing.T) {
	a := Generate(1, 0.5, 0.1, 0.015, 0.005)
	b := Generate(1, 0.5, 0.1, 0.015, 0.005)

	for i := 0; i < 20; i++ {
		outA := a.March(0.3)
		outB := b.March(0.3)
		if outA != outB {
			t.Fatalf("step %d: outputs diverged: %v != %v", i, outA, outB)
		}
	}
}

func TestZeroClearsHistory(t *testing.T) {
	f := Generate(1, 1, 0, 0.015, 0.005)
	for i := 0; i < 5; i++ {
		f.March(1.0)
	}
	f.Zero()
	if f.CurrentOutput() != 0 {
		t.Fatalf("expected zeroed output, got %v", f.CurrentOutput())
	}
	if f.integrator != 0 || f.derivative != 0 || f.lastInput != 0 {
		t.Fatalf("expected cleared history, got %+v", f)
	}
}

func TestSaturateClampsAndFreezesIntegrator(t *testing.T) {
	f := Generate(0, 10, 0, 0.015, 0.005)
	f.March(1.0)
	got := f.Saturate(-0.2, 0.2)
	if got != 0.2 {
		t.Fatalf("expected clamp to 0.2, got %v", got)
	}

	before := f.integrator
	f.March(1.0)
	if f.integrator != before {
		t.Fatalf("expected integrator frozen after saturation, before=%v after=%v", before, f.integrator)
	}
}

func TestPureProportional(t *testing.T) {
	f := Generate(2, 0, 0, 0.015, 0.005)
	out := f.March(0.5)
	if out != 1.0 {
		t.Fatalf("expected pure-P output of 1.0, got %v", out)
	}
}
