package modem

import "math"

// kaiserWindow returns the Kaiser window coefficient for sample n of an
// N-point window with shape parameter a, computed via the zeroth-order
// modified Bessel function of the first kind.
func kaiserWindow(a float64, n, N int) float64 {
	x := (2*float64(n))/float64(N-1) - 1
	return besselI0(math.Pi*a*math.Sqrt(1-x*x)) / besselI0(math.Pi*a)
}

// besselI0 evaluates I0(x) via a Kahan-summed power series; 35 terms is
// ample precision for the window shapes used here.
func besselI0(x float64) float64 {
	sum := 1.0
	term := 1.0
	comp := 0.0
	for k := 1; k <= 35; k++ {
		term *= (x / (2 * float64(k))) * (x / (2 * float64(k)))
		y := term - comp
		t := sum + y
		comp = (t - sum) - y
		sum = t
	}
	return sum
}
