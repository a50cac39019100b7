package fec

import "sort"

// sclPath is one candidate decoding hypothesis carried by the
// successive-cancellation list decoder. Per the design notes, the list
// is modelled as a plain array of L equal-shape paths rather than
// literal SIMD lanes; forking and pruning operate on this array.
type sclPath struct {
	bits   []int
	metric float64
}

// prod is the min-sum check-node combine: sign(a)*sign(b)*min(|a|,|b|).
func prod(a, b float64) float64 {
	s := 1.0
	if (a < 0) != (b < 0) {
		s = -1.0
	}
	if absF(a) < absF(b) {
		return s * absF(a)
	}
	return s * absF(b)
}

// madd is the variable-node combine: c + (1-2u)*a, i.e. the right-child
// LLR given the already-decided left bit u.
func madd(a float64, u int, c float64) float64 {
	sign := 1.0
	if u == 1 {
		sign = -1.0
	}
	return c + sign*a
}

func absF(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// leafLLR recomputes, via the standard recursive f/g combine, the LLR
// seen at local position `leaf` given this node's channel LLRs `ch`
// (length a power of two) and the bits already decided at every
// position below leaf within this node's span (decided has the same
// length as ch). The g-combine needs the *re-encoded* partial sum of
// the already-decided left half (beta), not the raw decided bits
// themselves, except at the base case n==2 where the two coincide;
// beta is obtained by running the left half back through the same
// Arikan kernel used at encode time.
func leafLLR(ch []float64, decided []int, leaf int) float64 {
	n := len(ch)
	if n == 1 {
		return ch[0]
	}
	half := n / 2
	if leaf < half {
		combined := make([]float64, half)
		for i := 0; i < half; i++ {
			combined[i] = prod(ch[i], ch[half+i])
		}
		return leafLLR(combined, decided[:half], leaf)
	}
	beta := arikanEncode(append([]int(nil), decided[:half]...))
	combined := make([]float64, half)
	for i := 0; i < half; i++ {
		combined[i] = madd(ch[i], beta[i], ch[half+i])
	}
	return leafLLR(combined, decided[half:], leaf-half)
}

// DecodeSCL runs CRC-aided successive-cancellation list decoding over
// channel LLRs (length PolarN, positive = bit 0 more likely) and
// returns the decoded data bits (message minus CRC) plus whether a
// CRC-passing survivor was found.
func (p *Polar) DecodeSCL(llr []float64, listSize int) ([]int, bool) {
	paths := []sclPath{{bits: make([]int, PolarN)}}

	for leaf := 0; leaf < PolarN; leaf++ {
		if p.frozen[leaf] {
			for i := range paths {
				val := leafLLR(llr, paths[i].bits, leaf)
				paths[i].bits[leaf] = 0
				if val < 0 {
					paths[i].metric += absF(val)
				}
			}
			continue
		}

		next := make([]sclPath, 0, 2*len(paths))
		for _, path := range paths {
			val := leafLLR(llr, path.bits, leaf)
			for _, c := range []int{0, 1} {
				cand := sclPath{bits: append([]int(nil), path.bits...), metric: path.metric}
				cand.bits[leaf] = c
				mismatch := (c == 0 && val < 0) || (c == 1 && val >= 0)
				if mismatch {
					cand.metric += absF(val)
				}
				next = append(next, cand)
			}
		}
		sort.Slice(next, func(a, b int) bool { return next[a].metric < next[b].metric })
		if len(next) > listSize {
			next = next[:listSize]
		}
		paths = next
	}

	sort.Slice(paths, func(a, b int) bool { return paths[a].metric < paths[b].metric })

	info := p.InfoPositions()
	dataLen := p.k - 32
	for _, path := range paths {
		// Systematic re-encode: the message lives at the info positions
		// of the codeword, not of the u-domain decision vector.
		x := arikanEncode(path.bits)
		message := make([]int, p.k)
		for i, pos := range info {
			message[i] = x[pos]
		}
		dataBits := message[:dataLen]
		crcBits := message[dataLen:]
		want := polarCRC32.Compute(dataBits)
		got := bitsToUint(crcBits)
		if want == got {
			return append([]int(nil), dataBits...), true
		}
	}
	return nil, false
}

func bitsToUint(bits []int) uint64 {
	var v uint64
	for _, b := range bits {
		v = (v << 1) | uint64(b&1)
	}
	return v
}
