package modem

import "math"

// schmidlCoxPoly seeds the MLS that drives the sync symbol's even-carrier
// BPSK signature; encoder and detector must agree on it.
const schmidlCoxPoly = 0b10001001

// schmidlCoxCount is the number of occupied carriers in the sync symbol:
// every second bin across the payload block, so the time-domain symbol
// consists of two identical halves.
const schmidlCoxCount = PayloadCarriers / 2

// schmidlCoxCarriers lists the full-grid bin of each occupied sync
// carrier, in MLS feed order.
func schmidlCoxCarriers(layout Layout) []int {
	out := make([]int, schmidlCoxCount)
	for i := 0; i < schmidlCoxCount; i++ {
		out[i] = bin(layout.CarrierOffset-PayloadCarriers/2+2*i, layout.SymbolLen)
	}
	return out
}

// schmidlCoxValues materialises the +-1 signature the carriers carry.
func schmidlCoxValues() []int {
	return NewMLS(schmidlCoxPoly, 1).Sequence(schmidlCoxCount)
}

// SchmidlCox detects the two-identical-halves sync symbol on an
// analytic (complex) sample stream. Feed tracks the sliding
// half-symbol auto-correlation, debounces the timing metric with a
// Schmitt trigger and commits on its falling edge; Refine then runs the
// integer-CFO / sample-position correction on the committed window.
type SchmidlCox struct {
	symbolLen int
	guardLen  int
	matchLen  int

	history []complex128 // ring of the last symbolLen+1 samples
	n       int          // samples fed so far

	corSum complex128 // sliding P = sum x[j]*conj(x[j+half])
	pwrSum float64    // sliding sum |x[j]|^2 over the newest half

	matchHist []float64
	matchSum  float64

	phaseHist []float64

	schmitt schmittState

	peakValue float64
	peakPos   int     // aligned stream position of the running peak
	peakPhase float64 // auto-correlation phase at the aligned peak

	kernel []complex128 // conj-reference for the refinement correlator
}

type schmittState struct {
	low, high float64
	active    bool
}

// NewSchmidlCox builds a detector for the given OFDM geometry. The
// refinement kernel is derived from the same even-carrier MLS spectrum
// the encoder transmits: the sync symbol's half-length FFT places
// carrier 2k of the full grid at half-grid bin k, and the differential
// sequence across those occupied bins is what the received spectrum is
// correlated against.
func NewSchmidlCox(layout Layout) *SchmidlCox {
	matchLen := layout.GuardLen | 1
	s := &SchmidlCox{
		symbolLen: layout.SymbolLen,
		guardLen:  layout.GuardLen,
		matchLen:  matchLen,
		history:   make([]complex128, layout.SymbolLen+1),
		matchHist: make([]float64, matchLen),
		phaseHist: make([]float64, matchLen),
		schmitt:   schmittState{low: 0.17 * float64(matchLen), high: 0.19 * float64(matchLen)},
	}

	half := layout.SymbolLen / 2
	specHalf := make([]complex128, half)
	values := schmidlCoxValues()
	for i, carrier := range schmidlCoxCarriers(layout) {
		specHalf[carrier/2] = complex(float64(values[i]), 0)
	}
	diff := make([]complex128, half-1)
	for i := 0; i < half-1; i++ {
		if specHalf[i] != 0 && specHalf[i+1] != 0 {
			diff[i] = specHalf[i+1] / specHalf[i]
		}
	}
	s.kernel = FFT(diff)
	return s
}

// Reset clears all running detector state (sliding sums, Schmitt
// trigger, peak tracking) without rebuilding the refinement kernel, so
// the detector can re-arm after a frame completes or fails.
func (s *SchmidlCox) Reset() {
	for i := range s.history {
		s.history[i] = 0
	}
	s.n = 0
	s.corSum = 0
	s.pwrSum = 0
	for i := range s.matchHist {
		s.matchHist[i] = 0
		s.phaseHist[i] = 0
	}
	s.matchSum = 0
	s.schmitt.active = false
	s.peakValue = 0
	s.peakPos = 0
	s.peakPhase = 0
}

// SyncResult reports a committed coarse detection.
type SyncResult struct {
	Position int     // stream position of the sync symbol window start
	FracCFO  float64 // fractional CFO, rad/sample
}

// RefineResult carries the integer-CFO and timing correction derived
// from the committed window.
type RefineResult struct {
	Shift     int     // integer frequency shift, half-symbol grid bins
	PosErr    int     // sample-position correction, spec units (2x samples)
	CFO       float64 // combined CFO, rad/sample, wrapped to (-pi, pi]
	Confident bool
}

// Feed processes one analytic sample. It returns a commit when the
// Schmitt-debounced timing metric falls through its falling edge; the
// caller then extracts the committed half-symbol from its own history
// and passes it to Refine.
func (s *SchmidlCox) Feed(x complex128) (SyncResult, bool) {
	half := s.symbolLen / 2
	hl := len(s.history)

	s.history[s.n%hl] = x
	s.n++

	// Slide P = sum x[j]*conj(x[j+half]) over the window's two halves
	// and the reference power over its newest half.
	s.pwrSum += absC2(x)
	if s.n > half {
		old := s.history[(s.n-1-half)%hl]
		s.pwrSum -= absC2(old)
		s.corSum += old * cconj(x)
	}
	if s.n > s.symbolLen {
		s.corSum -= s.history[(s.n-1-s.symbolLen)%hl] * cconj(s.history[(s.n-1-half)%hl])
	}

	p := s.corSum
	r := 0.5 * s.pwrSum
	var timing float64
	if s.n >= s.symbolLen && r > 1e-12 {
		timing = absC2(p) / (r * r)
	}

	// SMA over matchLen timing values; the matching delay line of
	// correlation phases compensates the averager's group delay so the
	// phase latched at a peak belongs to the same aligned position.
	idx := s.n % s.matchLen
	s.matchSum -= s.matchHist[idx]
	s.matchHist[idx] = timing
	s.matchSum += timing
	s.phaseHist[idx] = cphase(p)

	if s.matchSum > s.peakValue && s.n >= s.symbolLen {
		delay := (s.matchLen - 1) / 2
		s.peakValue = s.matchSum
		s.peakPos = s.n - delay - s.symbolLen
		s.peakPhase = s.phaseHist[((idx-delay)%s.matchLen+s.matchLen)%s.matchLen]
	}

	wasActive := s.schmitt.active
	if s.matchSum > s.schmitt.high {
		s.schmitt.active = true
	} else if s.matchSum < s.schmitt.low {
		s.schmitt.active = false
	}

	if wasActive && !s.schmitt.active && s.peakValue > 0 {
		// The halves repeat with period L/2, so the phase advance over
		// that separation pins the fractional CFO.
		result := SyncResult{
			Position: s.peakPos,
			FracCFO:  -2 * s.peakPhase / float64(s.symbolLen),
		}
		s.peakValue = 0
		return result, true
	}
	return SyncResult{}, false
}

// Refine runs the integer-CFO / sample-position correction on seg, the
// committed half-symbol window (length symbolLen/2, already extracted at
// SyncResult.Position): de-rotate by the fractional CFO, FFT,
// differentially divide consecutive bins with erasure of weak or
// implausible ratios, FFT again, multiply by the conjugate reference
// kernel, inverse-FFT and pick the argmax bin.
func (s *SchmidlCox) Refine(seg []complex128, fracCFO float64) RefineResult {
	half := s.symbolLen / 2

	derot := make([]complex128, half)
	osc := NewPhasor(-fracCFO)
	for i := 0; i < half && i < len(seg); i++ {
		derot[i] = seg[i] * osc.Next()
	}
	spec := FFT(derot)

	meanPwr := 0.0
	for _, v := range spec {
		meanPwr += absC2(v)
	}
	meanPwr /= float64(len(spec))

	diff := make([]complex128, half-1)
	for i := range diff {
		a, b := spec[i], spec[i+1]
		if absC2(a) < meanPwr || absC2(b) < meanPwr {
			continue
		}
		ratio := b / a
		if absC2(ratio) > 4 {
			continue
		}
		diff[i] = ratio
	}

	freq2 := FFT(diff)
	mixed := make([]complex128, len(freq2))
	scale := complex(float64(s.symbolLen), 0)
	for i := range mixed {
		mixed[i] = freq2[i] * cconj(s.kernel[i]) / scale
	}
	td := IFFT(mixed)

	bestIdx, bestVal, secondVal := 0, 0.0, 0.0
	for i, v := range td {
		m := absC2(v)
		if m > bestVal {
			secondVal = bestVal
			bestVal = m
			bestIdx = i
		} else if m > secondVal {
			secondVal = m
		}
	}

	confident := bestVal > 4*secondVal
	shift := bestIdx
	if shift > len(td)/2 {
		shift -= len(td)
	}
	posErr := int(math.Round(cphase(td[bestIdx]) * float64(s.symbolLen) / (2 * math.Pi)))
	// posErr counts half samples; compare the offset in samples.
	if absI(posErr)/2 > s.guardLen/2 {
		confident = false
	}

	// Half-grid bins are two full-grid bins wide, so each unit of shift
	// is worth 4*pi/L rad/sample on top of the fractional estimate.
	cfo := wrapPi(fracCFO + float64(shift)*4*math.Pi/float64(s.symbolLen))

	return RefineResult{
		Shift:     shift,
		PosErr:    posErr,
		CFO:       cfo,
		Confident: confident,
	}
}

func cconj(x complex128) complex128 { return complex(real(x), -imag(x)) }
func absC2(x complex128) float64    { return real(x)*real(x) + imag(x)*imag(x) }
func cphase(x complex128) float64   { return math.Atan2(imag(x), real(x)) }

func absI(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func wrapPi(x float64) float64 {
	for x > math.Pi {
		x -= 2 * math.Pi
	}
	for x <= -math.Pi {
		x += 2 * math.Pi
	}
	return x
}
