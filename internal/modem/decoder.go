package modem

import (
	"math"

	"github.com/aicodix/cofdmtv/internal/fec"
)

// DecoderStatus is the status code surfaced by Decoder.Process.
type DecoderStatus int

const (
	StatusOkay DecoderStatus = 0
	StatusFail DecoderStatus = 1
	StatusSync DecoderStatus = 2
	StatusDone DecoderStatus = 3
	StatusHeap DecoderStatus = 4
	StatusNope DecoderStatus = 5
	StatusPing DecoderStatus = 6
)

type decoderState int

const (
	stateIdle decoderState = iota
	stateLock
	stateData
)

// Decoder recovers COFDMTV frames from an analytic (or real, via
// DC-block+Hilbert) PCM stream through the pull-based
// feed/process/staged/fetch control surface. One instance owns all its
// buffers and is not safe for concurrent use.
type Decoder struct {
	layout Layout
	bch    *fec.BCH
	osd    *fec.OSD

	dcBlock *DCBlock
	hilbert *Hilbert
	bip     *BipBuffer
	sc      *SchmidlCox

	state decoderState

	fed      int // samples since Feed last reported a ready window
	scanBase int // stream position where the correlator was (re)armed
	scanned  int // next stream position to hand to the correlator

	cfo        float64 // latched CFO, rad/sample
	syncPos    int     // stream position of the sync symbol start
	preambleAt int     // stream position of the preamble symbol start

	stagedMode int
	stagedCall [9]int
	stagedCFO  float64

	symbolIndex   int
	symbolCount   int
	dataBits      int
	constellation *Constellation
	prevSpectrum  []complex128
	codeSoft      []float64

	listSize int
}

// NewDecoder builds a Decoder for rate r, programmed with the same
// carrier frequency as the transmitting Encoder.
func NewDecoder(r Rate, carrierFreqHz float64) (*Decoder, error) {
	layout, err := NewLayout(r, carrierFreqHz)
	if err != nil {
		return nil, err
	}
	bchCodec := fec.NewBCH()
	return &Decoder{
		layout:   layout,
		bch:      bchCodec,
		osd:      fec.NewOSD(bchCodec.GeneratorMatrix()),
		dcBlock:  NewDCBlock(layout.AnalyticTaps),
		hilbert:  NewHilbert(layout.AnalyticTaps),
		bip:      NewBipBuffer(4 * layout.ExtendedLen),
		sc:       NewSchmidlCox(layout),
		listSize: 16,
	}, nil
}

// Feed ingests PCM samples (per channel's convention) and returns
// whether a full extended-length window has accumulated since the last
// ready report, i.e. whether Process has a symbol's worth of work.
func (d *Decoder) Feed(samples []int16, channel ChannelSelect) bool {
	n := len(samples)
	switch channel {
	case ChannelComplexBasebandIQ:
		for i := 0; i+1 < n; i += 2 {
			re := float64(samples[i]) / 32768
			im := float64(samples[i+1]) / 32768
			d.pushComplex(complex(re, im))
		}
	case ChannelLeftReal:
		for i := 0; i < n; i += 2 {
			d.pushReal(float64(samples[i]) / 32768)
		}
	case ChannelRightReal:
		for i := 1; i < n; i += 2 {
			d.pushReal(float64(samples[i]) / 32768)
		}
	case ChannelStereoClone:
		for i := 0; i+1 < n; i += 2 {
			avg := (float64(samples[i]) + float64(samples[i+1])) / 2 / 32768
			d.pushReal(avg)
		}
	default:
		for i := 0; i < n; i++ {
			d.pushReal(float64(samples[i]) / 32768)
		}
	}
	if d.fed >= d.layout.ExtendedLen {
		d.fed -= d.layout.ExtendedLen
		return true
	}
	return false
}

func (d *Decoder) pushReal(x float64) {
	d.pushComplex(d.hilbert.Apply(d.dcBlock.Apply(x)))
}

func (d *Decoder) pushComplex(x complex128) {
	d.bip.Write(x)
	d.fed++
}

// Process advances decoding by at most one OFDM symbol of work.
func (d *Decoder) Process() DecoderStatus {
	switch d.state {
	case stateIdle:
		return d.processSearch()
	case stateLock:
		return d.processPreamble()
	case stateData:
		return d.processData()
	}
	return StatusOkay
}

// resetSearch re-arms the correlator at stream position pos.
func (d *Decoder) resetSearch(pos int) {
	d.sc.Reset()
	d.state = stateIdle
	d.scanBase = pos
	d.scanned = pos
}

// processSearch scans up to one extended symbol of samples through the
// Schmidl-Cox correlator, running the refinement stage on any commit.
func (d *Decoder) processSearch() DecoderStatus {
	total := d.bip.Total()
	if oldest := total - d.bip.n; d.scanned < oldest {
		// The caller outran the retained history; re-arm on what's left.
		d.resetSearch(oldest)
	}
	limit := d.scanned + d.layout.ExtendedLen
	if limit > total {
		limit = total
	}
	for d.scanned < limit {
		chunk, ok := d.bip.Slice(d.scanned, limit-d.scanned)
		if !ok {
			return StatusOkay
		}
		for _, x := range chunk {
			d.scanned++
			coarse, commit := d.sc.Feed(x)
			if !commit {
				continue
			}
			windowAt := d.scanBase + coarse.Position
			seg, ok := d.bip.Slice(windowAt, d.layout.SymbolLen/2)
			if !ok {
				continue
			}
			refined := d.sc.Refine(seg, coarse.FracCFO)
			if !refined.Confident {
				continue
			}
			d.cfo = refined.CFO
			d.syncPos = windowAt - refined.PosErr/2
			d.preambleAt = d.syncPos + d.layout.SymbolLen + d.layout.GuardLen
			d.state = stateLock
			return StatusOkay
		}
	}
	return StatusOkay
}

// processPreamble waits for the preamble symbol to arrive, then runs
// the BCH+OSD metadata decode and latches the staged preamble info.
func (d *Decoder) processPreamble() DecoderStatus {
	if d.bip.Total() < d.preambleAt+d.layout.SymbolLen {
		return StatusOkay
	}
	samples, ok := d.bip.Slice(d.preambleAt, d.layout.SymbolLen)
	if !ok {
		d.resetSearch(d.bip.Total())
		return StatusFail
	}
	spec := FFT(d.derotate(samples, d.preambleAt-d.syncPos))

	soft := d.dbpskSoft(spec)
	message, unambiguous := d.osd.Decode(soft)
	if !unambiguous {
		d.resetSearch(d.preambleAt + d.layout.SymbolLen)
		return StatusFail
	}

	meta, crcOK := VerifyInfoVector(message)
	if !crcOK {
		d.resetSearch(d.preambleAt + d.layout.SymbolLen)
		return StatusFail
	}

	d.stagedMode = meta.Mode
	d.stagedCall = meta.Call
	d.stagedCFO = d.cfo * float64(d.layout.Rate) / (2 * math.Pi)

	if meta.Mode == 0 {
		d.resetSearch(d.preambleAt + d.layout.SymbolLen)
		return StatusPing
	}
	// The 47-bit call field can hold values past 37^9 that the digit
	// conversion would silently wrap, so range-check the raw bits.
	var md uint64
	for i := 0; i < 55; i++ {
		md = md<<1 | uint64(message[i]&1)
	}
	cfg, ok := modeTable[meta.Mode]
	if !ok || md>>8 == 0 || md>>8 >= MaxCallSignValue {
		d.resetSearch(d.preambleAt + d.layout.SymbolLen)
		return StatusNope
	}

	d.symbolCount = cfg.symbolCount
	d.dataBits = cfg.dataBits
	d.constellation = NewConstellation(cfg.mapping)
	d.symbolIndex = 0
	d.prevSpectrum = nil
	d.codeSoft = make([]float64, 0, cfg.symbolCount*PayloadCarriers*cfg.mapping.BitsPerSymbol())
	d.state = stateData
	return StatusSync
}

// processData consumes the next payload symbol: FFT, differential demap
// against the previous symbol's payload bins, Theil-Sen residual-phase
// compensation, soft demap into the code buffer.
func (d *Decoder) processData() DecoderStatus {
	symbolAt := d.preambleAt + (d.symbolIndex+1)*d.layout.ExtendedLen
	if d.bip.Total() < symbolAt+d.layout.SymbolLen {
		return StatusOkay
	}
	samples, ok := d.bip.Slice(symbolAt, d.layout.SymbolLen)
	if !ok {
		d.resetSearch(d.bip.Total())
		return StatusFail
	}
	spec := FFT(d.derotate(samples, symbolAt-d.syncPos))

	cons := make([]complex128, PayloadCarriers)
	for i := range cons {
		cons[i] = spec[bin(d.layout.CarrierOffset+i-PayloadCarriers/2, d.layout.SymbolLen)]
	}

	diff := make([]complex128, PayloadCarriers)
	if d.prevSpectrum == nil {
		copy(diff, cons)
	} else {
		for i := range cons {
			if absC2(d.prevSpectrum[i]) > 1e-12 {
				diff[i] = cons[i] / d.prevSpectrum[i]
			}
		}
	}
	d.prevSpectrum = cons

	diff = theilSenCompensate(diff, d.constellation)

	precision := d.constellation.Precision(diff)
	for _, c := range diff {
		d.codeSoft = append(d.codeSoft, d.constellation.SoftDemap(c, precision)...)
	}

	d.symbolIndex++
	if d.symbolIndex >= d.symbolCount {
		d.resetSearch(symbolAt + d.layout.ExtendedLen)
		return StatusDone
	}
	return StatusOkay
}

// Staged reports the latched preamble info from the most recent
// successful sync.
func (d *Decoder) Staged() (cfoHz float64, mode int, call [9]int) {
	return d.stagedCFO, d.stagedMode, d.stagedCall
}

// Layout reports the rate-derived OFDM geometry the decoder was built
// with, so callers can size PCM buffers (ExtendedLen per Feed call).
func (d *Decoder) Layout() Layout { return d.layout }

// Fetch runs the CRC-aided polar list decoder plus de-scramble on the
// accumulated soft bits, writing up to 170 payload bytes (zero-padded).
// Returns the number of decoded bytes, or a negative value on CRC
// failure.
func (d *Decoder) Fetch(out []byte) int {
	for i := range out {
		out[i] = 0
	}
	if len(d.codeSoft) == 0 {
		return -1
	}
	polar := fec.NewPolar(polarK(d.dataBits))
	dataBits, ok := polar.DecodeSCL(d.codeSoft, d.listSize)
	if !ok {
		return -1
	}

	raw := make([]byte, (d.dataBits+7)/8)
	for i, b := range dataBits {
		if b != 0 {
			raw[i/8] |= 1 << uint(7-i%8)
		}
	}
	descrambled := fec.Scramble(raw)

	n := len(descrambled)
	if n > len(out) {
		n = len(out)
	}
	copy(out, descrambled[:n])
	return n
}

// derotate removes the latched CFO from a symbol window; offset is the
// window's sample distance from the sync position, keeping the
// oscillator phase continuous across the whole frame.
func (d *Decoder) derotate(samples []complex128, offset int) []complex128 {
	out := make([]complex128, len(samples))
	phase := -d.cfo * float64(offset)
	cur := complex(math.Cos(phase), math.Sin(phase))
	delta := complex(math.Cos(-d.cfo), math.Sin(-d.cfo))
	for i, s := range samples {
		out[i] = s * cur
		cur *= delta
		if m := absC2(cur); m > 1.0001 || m < 0.9999 {
			cur /= complex(math.Sqrt(m), 0)
		}
	}
	return out
}

// dbpskSoft produces 255 soft DBPSK values from the preamble's FFT,
// dividing out the same MLS overlay applied at encode time.
func (d *Decoder) dbpskSoft(spec []complex128) []float64 {
	gen := NewMLS(preamblePoly, 1)
	soft := make([]float64, 255)
	prev := complex(1, 0)
	for i := 0; i < 255; i++ {
		mlsBit := gen.Next()
		carrier := bin(d.layout.CarrierOffset+i-127, d.layout.SymbolLen)
		v := spec[carrier] * cconj(prev) * complex(float64(mlsBit), 0)
		soft[i] = real(v)
		prev = spec[carrier]
	}
	return soft
}

// theilSenCompensate fits and removes a linear residual-phase trend
// across the payload's differential constellation points, measuring
// each point's phase against its nearest ideal constellation point.
func theilSenCompensate(cons []complex128, c *Constellation) []complex128 {
	xs := make([]float64, 0, len(cons))
	ys := make([]float64, 0, len(cons))
	for i, v := range cons {
		if absC2(v) < 1e-12 {
			continue
		}
		ideal := c.Map(c.Demap(v))
		xs = append(xs, float64(i))
		ys = append(ys, cphase(v*cconj(ideal)))
	}
	if len(xs) < 2 {
		return cons
	}
	fit := Fit(xs, ys)
	out := make([]complex128, len(cons))
	for i, v := range cons {
		phase := fit.At(float64(i))
		out[i] = v * complex(math.Cos(-phase), math.Sin(-phase))
	}
	return out
}
