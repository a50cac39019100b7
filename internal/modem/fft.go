package modem

import (
	"math"
	"math/cmplx"
)

// smallRadices are the factors the mixed-radix transform peels off before
// falling back to a direct O(n^2) DFT on whatever prime remainder is left.
// The symbol lengths produced by NewLayout (1280, 2560, 5120, 7056, 7680)
// all factor completely into this set.
var smallRadices = []int{2, 3, 4, 5, 7, 8, 11, 13, 17, 19, 23, 29, 31}

// FFT computes the forward Discrete Fourier Transform of x. Unlike a
// radix-2-only transform, length need not be a power of two: composite
// sizes are decomposed recursively over smallRadices, with a direct DFT
// leaf for any remaining prime factor.
func FFT(x []complex128) []complex128 {
	return transform(x, false)
}

// IFFT computes the inverse transform, scaled by 1/len(x).
func IFFT(x []complex128) []complex128 {
	out := transform(x, true)
	scale := complex(1/float64(len(x)), 0)
	for i := range out {
		out[i] *= scale
	}
	return out
}

func transform(x []complex128, inverse bool) []complex128 {
	n := len(x)
	if n <= 1 {
		out := make([]complex128, n)
		copy(out, x)
		return out
	}
	radix := smallestFactor(n)
	if radix == n {
		return dftDirect(x, inverse)
	}
	return transformRadix(x, radix, inverse)
}

// transformRadix performs one decimation-in-time split of x into `radix`
// interleaved sub-sequences of length n/radix, recurses on each, then
// combines with twiddle-weighted butterflies (the generalised radix-r
// Cooley-Tukey combine step).
func transformRadix(x []complex128, radix int, inverse bool) []complex128 {
	n := len(x)
	m := n / radix

	subs := make([][]complex128, radix)
	for r := 0; r < radix; r++ {
		sub := make([]complex128, m)
		for k := 0; k < m; k++ {
			sub[k] = x[k*radix+r]
		}
		subs[r] = transform(sub, inverse)
	}

	sign := -1.0
	if inverse {
		sign = 1.0
	}

	out := make([]complex128, n)
	for k := 0; k < m; k++ {
		for r := 0; r < radix; r++ {
			var acc complex128
			for p := 0; p < radix; p++ {
				angle := sign * 2 * math.Pi * (float64(k*p)/float64(n) + float64(r*p)/float64(radix))
				tw := cmplx.Exp(complex(0, angle))
				acc += subs[p][k] * tw
			}
			out[r*m+k] = acc
		}
	}
	return out
}

func dftDirect(x []complex128, inverse bool) []complex128 {
	n := len(x)
	out := make([]complex128, n)
	sign := -1.0
	if inverse {
		sign = 1.0
	}
	for k := 0; k < n; k++ {
		var acc complex128
		for j := 0; j < n; j++ {
			angle := sign * 2 * math.Pi * float64(k*j) / float64(n)
			acc += x[j] * cmplx.Exp(complex(0, angle))
		}
		out[k] = acc
	}
	return out
}

func smallestFactor(n int) int {
	for _, r := range smallRadices {
		if n%r == 0 {
			return r
		}
	}
	for d := 2; d*d <= n; d++ {
		if n%d == 0 {
			return d
		}
	}
	return n
}

// RealFFT performs FFT on real-valued input.
func RealFFT(x []float64) []complex128 {
	cx := make([]complex128, len(x))
	for i, v := range x {
		cx[i] = complex(v, 0)
	}
	return FFT(cx)
}

// RealIFFT performs IFFT and returns only the real part.
func RealIFFT(x []complex128) []float64 {
	result := IFFT(x)
	out := make([]float64, len(result))
	for i, v := range result {
		out[i] = real(v)
	}
	return out
}
