package modem

import "fmt"

// Rate is a supported sample rate for the COFDMTV physical layer.
type Rate int

const (
	Rate8000  Rate = 8000
	Rate16000 Rate = 16000
	Rate32000 Rate = 32000
	Rate44100 Rate = 44100
	Rate48000 Rate = 48000
)

// SupportedRates lists every sample rate the physical layer accepts.
var SupportedRates = []Rate{Rate8000, Rate16000, Rate32000, Rate44100, Rate48000}

func (r Rate) valid() bool {
	for _, s := range SupportedRates {
		if s == r {
			return true
		}
	}
	return false
}

// PayloadCarriers is the fixed width of the payload subcarrier block.
const PayloadCarriers = 256

// Layout holds the rate-derived geometry of the OFDM grid. All fields are
// integer-derived from the sample rate so that encoder and decoder agree
// bit-exactly on symbol boundaries.
type Layout struct {
	Rate          Rate
	SymbolLen     int // complex bins per OFDM symbol
	GuardLen      int // cyclic-prefix length
	ExtendedLen   int // SymbolLen + GuardLen
	AnalyticTaps  int // Hilbert FIR length, always odd
	CarrierOffset int // payload-block centre, in FFT bins
}

// NewLayout derives the OFDM grid geometry for rate r. carrierFreqHz
// selects the centre of the payload block within the spectrum; the
// derived bin offset is rounded to an even bin so the Schmidl-Cox
// symbol's even-carrier signature keeps its two identical halves.
func NewLayout(r Rate, carrierFreqHz float64) (Layout, error) {
	if !r.valid() {
		return Layout{}, fmt.Errorf("modem: unsupported sample rate %d", r)
	}
	symbolLen := (1280 * int(r)) / 8000
	guardLen := symbolLen / 8
	analyticTaps := ((21*int(r)/8000)&^3 | 1)
	carrierOffset := int(carrierFreqHz*float64(symbolLen)/float64(r)+0.5) &^ 1
	if carrierOffset-PayloadCarriers/2 <= 0 || carrierOffset+PayloadCarriers/2 >= symbolLen/2 {
		return Layout{}, fmt.Errorf("modem: carrier frequency %g Hz puts the payload block outside the real-signal band at rate %d", carrierFreqHz, r)
	}
	return Layout{
		Rate:          r,
		SymbolLen:     symbolLen,
		GuardLen:      guardLen,
		ExtendedLen:   symbolLen + guardLen,
		AnalyticTaps:  analyticTaps,
		CarrierOffset: carrierOffset,
	}, nil
}

// bin wraps a signed carrier offset into a non-negative FFT bin index.
func bin(offset, symbolLen int) int {
	b := offset % symbolLen
	if b < 0 {
		b += symbolLen
	}
	return b
}
