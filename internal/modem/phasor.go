package modem

import "math"

// Phasor is a numerically controlled oscillator: repeated calls return
// unit-magnitude complex samples at a fixed angular increment, used to
// de-rotate the analytic stream by an estimated carrier frequency offset.
type Phasor struct {
	delta complex128
	prev  complex128
}

// NewPhasor creates an oscillator starting at phase 0 with angular
// increment omega radians per sample.
func NewPhasor(omega float64) *Phasor {
	p := &Phasor{prev: complex(1, 0)}
	p.SetOmega(omega)
	return p
}

// SetOmega reprograms the angular increment without resetting phase.
func (p *Phasor) SetOmega(omega float64) {
	p.delta = complex(math.Cos(omega), math.Sin(omega))
}

// Next returns the current phasor value and advances, renormalising
// periodically to avoid magnitude drift from accumulated rounding error.
func (p *Phasor) Next() complex128 {
	out := p.prev
	p.prev *= p.delta
	if m := cabs2(p.prev); m > 1.0001 || m < 0.9999 {
		p.prev /= complex(math.Sqrt(m), 0)
	}
	return out
}

func cabs2(x complex128) float64 {
	r, i := real(x), imag(x)
	return r*r + i*i
}
