package modem

import "math"

// ReducePAPR clips the peak-to-average power ratio of a transmit-side
// time-domain symbol by oversampling via zero-padding, clipping excess
// magnitude in the oversampled time domain, then restoring only the
// originally-active spectral bins. Only used for R <= 16000; at higher
// rates the transform is a no-op (factor 1).
func ReducePAPR(freqDomain []complex128, factor int) []complex128 {
	n := len(freqDomain)
	if factor <= 1 {
		return freqDomain
	}

	oversampled := make([]complex128, n*factor)
	half := n / 2
	copy(oversampled[:half], freqDomain[:half])
	copy(oversampled[len(oversampled)-half:], freqDomain[half:])

	// The oversampled synthesis spreads the same spectrum over
	// factor*n samples, shrinking each by 1/factor relative to the
	// final n-point synthesis; compensate so the unit clip ceiling
	// means the same amplitude the emitted symbol will have.
	td := IFFT(oversampled)
	f := complex(float64(factor), 0)
	for i, s := range td {
		s *= f
		if p := cabs2(s); p > 1 {
			s /= complex(math.Sqrt(p), 0)
		}
		td[i] = s
	}

	clipped := FFT(td)
	out := make([]complex128, n)
	copy(out[:half], clipped[:half])
	copy(out[half:], clipped[len(clipped)-(n-half):])
	for i := range out {
		if freqDomain[i] == 0 {
			out[i] = 0
			continue
		}
		out[i] /= f
	}
	return out
}
