package modem

import (
	"fmt"

	"github.com/aicodix/cofdmtv/internal/fec"
)

// ChannelSelect mirrors the wire/audio channel conventions shared by
// Encoder.Produce and Decoder.Feed.
type ChannelSelect int

const (
	ChannelMono              ChannelSelect = 0
	ChannelLeftReal          ChannelSelect = 1
	ChannelRightReal         ChannelSelect = 2
	ChannelComplexBasebandIQ ChannelSelect = 3
	ChannelStereoClone       ChannelSelect = 4
)

// modeForPayload picks the operation mode from a payload length:
// len==0 -> ping, else the smallest polar mode that fits.
func modeForPayload(n int) int {
	switch {
	case n == 0:
		return 0
	case n <= 85:
		return 16
	case n <= 128:
		return 15
	default:
		return 14
	}
}

// modeConfig is the per-mode wiring table: data_bits, symbol_count,
// mapping.
type modeConfig struct {
	dataBits    int
	symbolCount int
	mapping     Modulation
}

var modeTable = map[int]modeConfig{
	14: {dataBits: 1360, symbolCount: 4, mapping: ModQPSK},
	15: {dataBits: 1024, symbolCount: 4, mapping: ModQPSK},
	16: {dataBits: 680, symbolCount: 4, mapping: ModQPSK},
}

func polarK(dataBits int) int { return dataBits + 32 }

// MaxPayloadBytes is the largest payload a single COFDMTV frame carries.
const MaxPayloadBytes = 170

// Encoder produces a complete COFDMTV frame's PCM one extended-length
// OFDM symbol at a time via Produce, matching the external
// configure/produce control surface.
type Encoder struct {
	layout    Layout
	bch       *fec.BCH
	noiseSyms int
	fancy     bool

	metadata Metadata
	payload  []byte

	queue [][]complex128 // queued extended-length baseband blocks
	pos   int

	prevGuard []complex128
}

// NewEncoder constructs an Encoder for the given rate and carrier
// frequency; mapping/mode are selected per payload at Configure time.
func NewEncoder(r Rate, carrierFreqHz float64) (*Encoder, error) {
	layout, err := NewLayout(r, carrierFreqHz)
	if err != nil {
		return nil, err
	}
	return &Encoder{layout: layout, bch: fec.NewBCH()}, nil
}

// Configure assembles the frame for one payload/call-sign pair. payload
// may be nil/empty to select ping mode (metadata only).
func (e *Encoder) Configure(payload []byte, callSign string, noiseSymbols int, fancyHeader bool) error {
	if len(payload) > MaxPayloadBytes {
		return fmt.Errorf("modem: payload exceeds %d bytes (%d)", MaxPayloadBytes, len(payload))
	}
	call, ok := EncodeCallSign(callSign)
	if !ok {
		return fmt.Errorf("modem: call sign %q is not representable in base-37", callSign)
	}

	mode := modeForPayload(len(payload))
	e.metadata = Metadata{Mode: mode, Call: call}
	e.payload = append([]byte(nil), payload...)
	e.noiseSyms = noiseSymbols
	e.fancy = fancyHeader

	e.queue = e.queue[:0]
	e.pos = 0
	e.prevGuard = nil

	e.buildNoise()
	e.buildSchmidlCox()
	e.buildPreamble()

	if mode != 0 {
		e.buildPayload(modeTable[mode])
	}
	if e.fancy {
		e.buildFancyHeader()
	}
	// Flush block: fades the final symbol's tail to silence and covers
	// the receiver's analytic-filter delay.
	e.appendGuarded(make([]complex128, e.layout.SymbolLen))
	return nil
}

// Produce emits the next queued extended-length PCM block into out
// (layout.ExtendedLen mono samples, or twice that interleaved for the
// stereo conventions), following channelSelect. Returns false once the
// frame is exhausted; out is zero-filled from then on.
func (e *Encoder) Produce(out []int16, channel ChannelSelect) bool {
	if e.pos >= len(e.queue) {
		for i := range out {
			out[i] = 0
		}
		return false
	}
	block := e.queue[e.pos]
	e.pos++
	writeChannel(out, block, channel)
	return true
}

// Remaining reports how many extended-length symbols are still queued.
func (e *Encoder) Remaining() int { return len(e.queue) - e.pos }

// Layout reports the rate-derived OFDM geometry the encoder was built
// with, so callers can size PCM buffers (ExtendedLen per Produce call).
func (e *Encoder) Layout() Layout { return e.layout }

func writeChannel(out []int16, samples []complex128, channel ChannelSelect) {
	n := len(samples)
	switch channel {
	case ChannelLeftReal:
		for i := 0; i < n && 2*i+1 < len(out); i++ {
			out[2*i] = floatToInt16(real(samples[i]))
			out[2*i+1] = 0
		}
	case ChannelRightReal:
		for i := 0; i < n && 2*i+1 < len(out); i++ {
			out[2*i] = 0
			out[2*i+1] = floatToInt16(real(samples[i]))
		}
	case ChannelComplexBasebandIQ:
		for i := 0; i < n && 2*i+1 < len(out); i++ {
			out[2*i] = floatToInt16(real(samples[i]))
			out[2*i+1] = floatToInt16(imag(samples[i]))
		}
	case ChannelStereoClone:
		for i := 0; i < n && 2*i+1 < len(out); i++ {
			v := floatToInt16(real(samples[i]))
			out[2*i] = v
			out[2*i+1] = v
		}
	default:
		for i := 0; i < n && i < len(out); i++ {
			out[i] = floatToInt16(real(samples[i]))
		}
	}
}

func floatToInt16(x float64) int16 {
	v := x * 32767
	if v > 32767 {
		v = 32767
	}
	if v < -32768 {
		v = -32768
	}
	return int16(v)
}

// carrierAmplitude scales the unit constellation points so a fully
// occupied payload block synthesises to about 0.2 RMS in the time
// domain, leaving headroom for the PAPR clipper's unit ceiling.
func (e *Encoder) carrierAmplitude() float64 {
	return float64(e.layout.SymbolLen) / 80
}

// shape applies PAPR reduction (a no-op above 16 kHz), synthesises the
// time-domain symbol and queues it behind a cross-faded cyclic prefix.
func (e *Encoder) shape(spec []complex128) {
	reduced := ReducePAPR(spec, paprFactor(e.layout.Rate))
	e.appendGuarded(IFFT(reduced))
}

// buildNoise queues the randomised preamble-padding symbols: the payload
// block's carriers loaded with an MLS-scrambled QPSK pattern, so the
// padding occupies the same band as the frame that follows.
func (e *Encoder) buildNoise() {
	gen := NewMLS(0b100101010001, 1)
	ampl := e.carrierAmplitude()
	for s := 0; s < e.noiseSyms; s++ {
		spec := make([]complex128, e.layout.SymbolLen)
		for i := 0; i < PayloadCarriers; i++ {
			re := float64(gen.Next()) * ampl
			im := float64(gen.Next()) * ampl
			spec[e.payloadBin(i)] = complex(re, im)
		}
		e.shape(spec)
	}
}

// buildSchmidlCox queues the sync symbol: the MLS signature on every
// second payload carrier, giving the time domain its two identical
// halves.
func (e *Encoder) buildSchmidlCox() {
	ampl := e.carrierAmplitude()
	spec := make([]complex128, e.layout.SymbolLen)
	values := schmidlCoxValues()
	for i, carrier := range schmidlCoxCarriers(e.layout) {
		spec[carrier] = complex(float64(values[i])*ampl, 0)
	}
	e.shape(spec)
}

// buildPreamble queues the metadata symbol: the BCH(255,71) codeword of
// the 71-bit info vector, DBPSK-chained across 255 carriers under an
// MLS overlay.
func (e *Encoder) buildPreamble() {
	info := e.metadata.InfoVector()
	codeword := e.bch.Encode(info)

	gen := NewMLS(preamblePoly, 1)
	ampl := e.carrierAmplitude()
	spec := make([]complex128, e.layout.SymbolLen)
	prev := 1
	for i := 0; i < 255; i++ {
		sign := 1
		if codeword[i] == 1 {
			sign = -1
		}
		prev *= sign * gen.Next()
		spec[e.preambleBin(i)] = complex(float64(prev)*ampl, 0)
	}
	e.shape(spec)
}

func (e *Encoder) buildPayload(cfg modeConfig) {
	// The frame always carries a full payload buffer: short payloads are
	// zero-padded before scrambling so the receiver's full-length
	// descramble restores the padding to zeros.
	buf := make([]byte, cfg.dataBits/8)
	copy(buf, e.payload)
	scrambled := fec.Scramble(buf)

	dataBits := make([]int, cfg.dataBits)
	for i := range dataBits {
		dataBits[i] = int((scrambled[i/8] >> uint(7-i%8)) & 1)
	}

	polar := fec.NewPolar(polarK(cfg.dataBits))
	codeword := polar.Encode(dataBits)

	constellation := NewConstellation(cfg.mapping)
	ampl := e.carrierAmplitude()
	bps := cfg.mapping.BitsPerSymbol()
	bitsPerSymbol := PayloadCarriers * bps

	// acc carries the per-carrier differential chain: each symbol
	// transmits the previous transmitted value times the fresh point, so
	// the receiver's symbol-over-symbol ratio recovers the point with
	// the channel response cancelled.
	acc := make([]complex128, PayloadCarriers)
	for i := range acc {
		acc[i] = complex(1, 0)
	}

	for s := 0; s < cfg.symbolCount; s++ {
		bits := make([]byte, bitsPerSymbol)
		base := s * bitsPerSymbol
		for i := 0; i < bitsPerSymbol; i++ {
			if idx := base + i; idx < len(codeword) {
				bits[i] = byte(codeword[idx])
			}
		}
		syms := constellation.MapBits(bits)

		spec := make([]complex128, e.layout.SymbolLen)
		for i := 0; i < PayloadCarriers; i++ {
			acc[i] *= syms[i]
			spec[e.payloadBin(i)] = acc[i] * complex(ampl, 0)
		}
		e.shape(spec)
	}
}

func paprFactor(r Rate) int {
	if r <= Rate16000 {
		return 4
	}
	return 1
}

// buildFancyHeader queues the call-sign bitmap symbols.
func (e *Encoder) buildFancyHeader() {
	ampl := e.carrierAmplitude()
	for row := 0; row < fancyGlyphRows; row++ {
		bits := FancyCarriers(e.metadata.Call, row)
		spec := make([]complex128, e.layout.SymbolLen)
		for i, on := range bits {
			if on {
				spec[e.payloadBin(i)] = complex(ampl, 0)
			}
		}
		e.shape(spec)
	}
}

// payloadBin maps payload carrier index 0..255 to its FFT bin.
func (e *Encoder) payloadBin(i int) int {
	return bin(e.layout.CarrierOffset+i-PayloadCarriers/2, e.layout.SymbolLen)
}

// preambleBin maps preamble carrier index 0..254 to its FFT bin.
func (e *Encoder) preambleBin(i int) int {
	return bin(e.layout.CarrierOffset+i-127, e.layout.SymbolLen)
}

// appendGuarded prepends a cyclic-prefix guard, cross-faded against the
// previous symbol's trailing guard with a raised-cosine-like ramp, and
// queues the resulting extended-length block.
func (e *Encoder) appendGuarded(symbol []complex128) {
	n := e.layout.SymbolLen
	g := e.layout.GuardLen
	ratio := 0.5

	guard := make([]complex128, g)
	copy(guard, symbol[n-g:])

	out := make([]complex128, n+g)
	for i := 0; i < g; i++ {
		w := float64(i) / float64(g)
		if w > ratio {
			w = ratio
		}
		w /= ratio
		var prevTail complex128
		if e.prevGuard != nil {
			prevTail = e.prevGuard[i]
		}
		out[i] = complex(w, 0)*guard[i] + complex(1-w, 0)*prevTail
	}
	copy(out[g:], symbol)
	e.prevGuard = guard
	e.queue = append(e.queue, out)
}
