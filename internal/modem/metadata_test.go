package modem

import "testing"

func TestCallSignRoundTrip(t *testing.T) {
	for _, call := range []string{"", "OWO", "AICODIX", "DL1ABC", "W1AW", "123456789"} {
		digits, ok := EncodeCallSign(call)
		if !ok {
			t.Fatalf("EncodeCallSign(%q) failed", call)
		}
		decoded := DecodeCallSign(digits)
		want := call
		for len(want) < 9 {
			want += " "
		}
		if decoded != want {
			t.Errorf("call %q: decoded %q, want %q", call, decoded, want)
		}
	}
}

func TestCallSignRejectsInvalid(t *testing.T) {
	for _, call := range []string{"TOOLONGCALL", "A/B", "A.B"} {
		if _, ok := EncodeCallSign(call); ok {
			t.Errorf("EncodeCallSign(%q) accepted", call)
		}
	}
}

func TestCallSignLowerCaseFolded(t *testing.T) {
	lower, ok := EncodeCallSign("owo")
	if !ok {
		t.Fatal("lower-case call rejected")
	}
	upper, _ := EncodeCallSign("OWO")
	if lower != upper {
		t.Error("case folding changed the call sign value")
	}
}

func TestMetadataBitsRoundTrip(t *testing.T) {
	call, _ := EncodeCallSign("AICODIX")
	for _, mode := range []int{0, 14, 15, 16} {
		m := Metadata{Mode: mode, Call: call}
		got := MetadataFromBits(m.Bits())
		if got.Mode != mode || got.Call != call {
			t.Errorf("mode %d: round trip gave %+v", mode, got)
		}
	}
}

func TestInfoVectorVerify(t *testing.T) {
	call, _ := EncodeCallSign("OWO")
	m := Metadata{Mode: 16, Call: call}
	info := m.InfoVector()
	if len(info) != 71 {
		t.Fatalf("info vector length = %d, want 71", len(info))
	}

	got, ok := VerifyInfoVector(info)
	if !ok {
		t.Fatal("CRC rejected an untouched info vector")
	}
	if got.Mode != 16 || got.Call != call {
		t.Errorf("verify gave %+v", got)
	}

	flipped := append([]int(nil), info...)
	flipped[12] ^= 1
	if _, ok := VerifyInfoVector(flipped); ok {
		t.Error("CRC accepted a corrupted info vector")
	}
}
