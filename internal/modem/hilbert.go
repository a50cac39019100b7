package modem

import "math"

// Hilbert turns a real sample stream into an analytic (complex) stream
// using an odd-length FIR built from a Kaiser-windowed ideal Hilbert
// kernel. TAPS must satisfy (TAPS-1)%4==0 so the ideal-response zeros
// line up on even taps; the imaginary-branch delay equals (TAPS-1)/2
// samples, which the real branch replicates so both components stay
// time-aligned.
type Hilbert struct {
	taps   int
	reco   []float64 // real-branch (pure delay) coefficients
	imco   []float64 // imaginary-branch (Hilbert) coefficients
	hist   []float64
	pos    int
}

// NewHilbert builds a transformer with the given odd tap count.
func NewHilbert(taps int) *Hilbert {
	if taps%2 == 0 || (taps-1)%4 != 0 {
		panic("modem: Hilbert taps must be odd with (taps-1)%4==0")
	}
	h := &Hilbert{
		taps: taps,
		reco: make([]float64, taps),
		imco: make([]float64, taps),
		hist: make([]float64, taps),
	}
	mid := (taps - 1) / 2
	h.reco[mid] = 1
	for n := 0; n < taps; n++ {
		k := n - mid
		if k%2 == 0 {
			h.imco[n] = 0
			continue
		}
		ideal := 2 / (math.Pi * float64(k))
		h.imco[n] = ideal * kaiserWindow(2.0, n, taps)
	}
	return h
}

// Apply pushes one real sample through the delay line and returns the
// analytic (complex) output aligned to the filter's group delay.
func (h *Hilbert) Apply(x float64) complex128 {
	h.hist[h.pos] = x
	var re, im float64
	idx := h.pos
	for n := 0; n < h.taps; n++ {
		re += h.reco[n] * h.hist[idx]
		im += h.imco[n] * h.hist[idx]
		idx--
		if idx < 0 {
			idx += h.taps
		}
	}
	h.pos++
	if h.pos >= h.taps {
		h.pos = 0
	}
	return complex(re, im)
}

// ApplySlice filters a block, preserving history across calls.
func (h *Hilbert) ApplySlice(x []float64) []complex128 {
	out := make([]complex128, len(x))
	for i, v := range x {
		out[i] = h.Apply(v)
	}
	return out
}
