package fec

import "sort"

// FrozenSet returns the set of "frozen" bit positions (length N-K) for a
// polar code of length n and information-bit count k: the N-K positions
// with the worst (highest) Bhattacharyya parameter under the standard
// polarisation recursion for a binary erasure channel with erasure
// probability 0.5 — Z(2i)=2Z(i)-Z(i)^2, Z(2i+1)=Z(i)^2, Z(0)=0.5. This
// stands in for the literal frozen_2048_{1392,1056,712} bitmask tables,
// which were not present in this module's retrieval pack (see
// DESIGN.md); the recursion is the textbook constructive substitute and
// is deterministic for a fixed (n,k), so encoder and decoder always
// agree on which positions are frozen.
func FrozenSet(n, k int) map[int]bool {
	z := bhattacharyya(n)

	type idxZ struct {
		idx int
		z   float64
	}
	order := make([]idxZ, n)
	for i, v := range z {
		order[i] = idxZ{i, v}
	}
	sort.Slice(order, func(a, b int) bool { return order[a].z > order[b].z })

	frozen := make(map[int]bool, n-k)
	for i := 0; i < n-k; i++ {
		frozen[order[i].idx] = true
	}
	return frozen
}

func bhattacharyya(n int) []float64 {
	z := make([]float64, n)
	z[0] = 0.5
	for size := 1; size < n; size *= 2 {
		for i := size - 1; i >= 0; i-- {
			zi := z[i]
			z[2*i] = 2*zi - zi*zi
			z[2*i+1] = zi * zi
		}
	}
	return z
}
