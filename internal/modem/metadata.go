package modem

import (
	"strings"

	"github.com/aicodix/cofdmtv/internal/fec"
)

// base37Alphabet maps call-sign characters to 0..36: space=0, digits
// 1-10, letters 11-36.
const base37Alphabet = " 0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// MetadataCRCPoly is the 16-bit CRC protecting the 55-bit metadata word.
const MetadataCRCPoly = 0xA8F4

var metadataCRC = fec.NewBitCRC(MetadataCRCPoly, 16)

// EncodeCallSign converts up to 9 ASCII characters into base-37 digits
// (0=space, 1-10=digits, 11-36=letters), space-padded.
func EncodeCallSign(call string) ([9]int, bool) {
	var out [9]int
	call = strings.ToUpper(call)
	if len(call) > 9 {
		return out, false
	}
	pos := 0
	for _, ch := range call {
		idx := strings.IndexRune(base37Alphabet, ch)
		if idx < 0 || pos >= 9 {
			return out, false
		}
		out[pos] = idx
		pos++
	}
	return out, true
}

// DecodeCallSign renders base-37 digits back to an ASCII string.
func DecodeCallSign(digits [9]int) string {
	var b strings.Builder
	for _, d := range digits {
		if d < 0 || d >= len(base37Alphabet) {
			b.WriteByte(' ')
			continue
		}
		b.WriteByte(base37Alphabet[d])
	}
	return b.String()
}

// CallSignValue packs 9 base-37 digits into a single integer, 0..37^9-1.
func CallSignValue(digits [9]int) uint64 {
	var v uint64
	for _, d := range digits {
		v = v*37 + uint64(d)
	}
	return v
}

// MaxCallSignValue is 37^9, the first value outside the valid range.
const MaxCallSignValue = 129961739795077

// Metadata is the 55-bit preamble payload: 8-bit operation mode plus a
// base-37 encoded 9-character call sign.
type Metadata struct {
	Mode int
	Call [9]int
}

// Bits packs Metadata into a 55-bit value, lower 8 bits = mode, upper
// 47 bits = base-37 call sign value.
func (m Metadata) Bits() uint64 {
	return uint64(m.Mode) | (CallSignValue(m.Call) << 8)
}

// MetadataFromBits unpacks a 55-bit value back into Metadata.
func MetadataFromBits(v uint64) Metadata {
	mode := int(v & 0xFF)
	call := v >> 8
	var digits [9]int
	for i := 8; i >= 0; i-- {
		digits[i] = int(call % 37)
		call /= 37
	}
	return Metadata{Mode: mode, Call: digits}
}

// InfoVector builds the 71-bit BCH info vector: 55 metadata bits
// followed by a 16-bit CRC computed over (md << 9).
func (m Metadata) InfoVector() []int {
	md := m.Bits()
	crc := metadataCRC.ComputeUint(md<<9, 64)
	out := make([]int, 71)
	for i := 0; i < 55; i++ {
		out[i] = int((md >> uint(54-i)) & 1)
	}
	for i := 0; i < 16; i++ {
		out[55+i] = int((crc >> uint(15-i)) & 1)
	}
	return out
}

// VerifyInfoVector checks the CRC on a 71-bit BCH info vector and, if
// valid, returns the decoded Metadata.
func VerifyInfoVector(bits []int) (Metadata, bool) {
	if len(bits) != 71 {
		return Metadata{}, false
	}
	var md uint64
	for i := 0; i < 55; i++ {
		md = (md << 1) | uint64(bits[i]&1)
	}
	var crc uint64
	for i := 0; i < 16; i++ {
		crc = (crc << 1) | uint64(bits[55+i]&1)
	}
	want := metadataCRC.ComputeUint(md<<9, 64)
	return MetadataFromBits(md), crc == want
}
