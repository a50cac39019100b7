package modem

import "testing"

func TestLayoutGeometry(t *testing.T) {
	tests := []struct {
		rate      Rate
		symbolLen int
		taps      int
	}{
		{Rate8000, 1280, 21},
		{Rate16000, 2560, 41},
		{Rate32000, 5120, 85},
		{Rate44100, 7056, 113},
		{Rate48000, 7680, 125},
	}
	for _, tt := range tests {
		l, err := NewLayout(tt.rate, 1500)
		if err != nil {
			t.Fatalf("rate %d: %v", tt.rate, err)
		}
		if l.SymbolLen != tt.symbolLen {
			t.Errorf("rate %d: symbol length %d, want %d", tt.rate, l.SymbolLen, tt.symbolLen)
		}
		if l.GuardLen != l.SymbolLen/8 {
			t.Errorf("rate %d: guard length %d, want %d", tt.rate, l.GuardLen, l.SymbolLen/8)
		}
		if l.ExtendedLen != l.SymbolLen+l.GuardLen {
			t.Errorf("rate %d: extended length inconsistent", tt.rate)
		}
		if l.AnalyticTaps != tt.taps {
			t.Errorf("rate %d: analytic taps %d, want %d", tt.rate, l.AnalyticTaps, tt.taps)
		}
		if l.AnalyticTaps%2 == 0 || (l.AnalyticTaps-1)%4 != 0 {
			t.Errorf("rate %d: analytic taps %d violates the Hilbert alignment constraint", tt.rate, l.AnalyticTaps)
		}
		if l.CarrierOffset%2 != 0 {
			t.Errorf("rate %d: carrier offset %d not even", tt.rate, l.CarrierOffset)
		}
	}
}

func TestLayoutRejectsUnsupported(t *testing.T) {
	if _, err := NewLayout(Rate(11025), 1500); err == nil {
		t.Error("11025 Hz accepted")
	}
	if _, err := NewLayout(Rate8000, 200); err == nil {
		t.Error("carrier at 200 Hz leaves the payload block straddling DC, should be rejected")
	}
}
