package fec

import "fmt"

// PolarCRCPoly is the 32-bit CRC polynomial concatenated onto the polar
// message before encoding, giving the list decoder a strong tie-break.
const PolarCRCPoly = 0x8F6E37A0

var polarCRC32 = NewBitCRC(PolarCRCPoly, 32)

// PolarN is the fixed polar code length for all three supported modes.
const PolarN = 2048

// Polar implements a systematic polar(PolarN, K) encoder/decoder pair.
type Polar struct {
	k      int
	frozen map[int]bool
}

// NewPolar builds a polar codec for message length k (data_bits+32 CRC
// bits), deriving the frozen-bit set via FrozenSet.
func NewPolar(k int) *Polar {
	return &Polar{k: k, frozen: FrozenSet(PolarN, k)}
}

// Encode CRC-augments a data_bits-length message (data_bits = k-32), then
// systematically polar-encodes it to a length-2048 codeword.
func (p *Polar) Encode(dataBits []int) []int {
	dataLen := p.k - 32
	if len(dataBits) != dataLen {
		panic(fmt.Sprintf("fec: polar data must be %d bits, got %d", dataLen, len(dataBits)))
	}
	crc := polarCRC32.Compute(dataBits)
	message := make([]int, p.k)
	copy(message, dataBits)
	for i := 0; i < 32; i++ {
		message[dataLen+i] = int((crc >> uint(31-i)) & 1)
	}
	return p.sysEncode(message)
}

// sysEncode implements PolarSysEnc via the encode-twice trick: a first
// Arikan pass over (message at info positions, zeros at frozen) yields
// y; the info positions of y are fed back through a second pass, again
// with zeros at frozen. Because the Arikan kernel is an involution and
// the frozen set is domination-closed, the resulting codeword carries
// the original message unchanged at the non-frozen positions while its
// u-domain frozen bits stay zero, which is exactly what the list
// decoder assumes.
func (p *Polar) sysEncode(message []int) []int {
	info := p.InfoPositions()

	u := make([]int, PolarN)
	for i, pos := range info {
		u[pos] = message[i]
	}
	y := arikanEncode(u)

	u2 := make([]int, PolarN)
	for _, pos := range info {
		u2[pos] = y[pos]
	}
	return arikanEncode(u2)
}

// arikanEncode applies the standard butterfly transform x = u*G (mod 2).
// len(u) must be a power of two; sub-block lengths show up via the SC
// decoder's partial-sum recursion.
func arikanEncode(u []int) []int {
	x := append([]int(nil), u...)
	n := len(x)
	for stage := 1; stage < n; stage *= 2 {
		for start := 0; start < n; start += 2 * stage {
			for i := 0; i < stage; i++ {
				a, b := start+i, start+i+stage
				x[a] ^= x[b]
			}
		}
	}
	return x
}

// InfoPositions returns the non-frozen bit indices in ascending order.
func (p *Polar) InfoPositions() []int {
	out := make([]int, 0, p.k)
	for i := 0; i < PolarN; i++ {
		if !p.frozen[i] {
			out = append(out, i)
		}
	}
	return out
}
