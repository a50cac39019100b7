package fec

import "sort"

// OSD is an order-2 ordered-statistics decoder for a systematic linear
// code with generator matrix G (k x n, GF(2)).
type OSD struct {
	k, n int
	g    [][]int
}

// NewOSD wraps a generator matrix for OSD-2 decoding.
func NewOSD(generator [][]int) *OSD {
	return &OSD{k: len(generator), n: len(generator[0]), g: generator}
}

// Decode runs order-2 ordered-statistics decoding on soft values (one
// per codeword bit, sign = hard decision, magnitude = reliability).
// Returns the decoded message bits and whether the margin between the
// best and second-best codeword was non-zero (the no-ambiguity check).
func (o *OSD) Decode(soft []float64) (message []int, unambiguous bool) {
	n, k := o.n, o.k

	// 1. reliability order, descending |soft|.
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return absf(soft[order[a]]) > absf(soft[order[b]])
	})

	hard := make([]int, n)
	for i, s := range soft {
		if s < 0 {
			hard[i] = 1
		}
	}

	// 2. permute columns of G by reliability, then row-reduce to
	// systematic form with pivot search that may swap additional
	// columns; perm tracks the final column order.
	perm := append([]int(nil), order...)
	permG := permuteColumns(o.g, perm)

	pivotPerm := rowEchelon(permG, k, n)
	// pivotPerm records, for each row/column pivot step, a swap of two
	// column indices within permG/perm; apply the same swaps to perm so
	// perm[i] always names the original bit index now sitting in column i.
	for _, sw := range pivotPerm {
		perm[sw[0]], perm[sw[1]] = perm[sw[1]], perm[sw[0]]
	}
	systematize(permG, k)

	// 3. re-encode hard decision of the K most-reliable (now leading)
	// positions, using the reduced, permuted generator matrix.
	permHard := make([]int, n)
	permSoft := make([]float64, n)
	for i, src := range perm {
		permHard[i] = hard[src]
		permSoft[i] = soft[src]
	}
	info := permHard[:k]

	best := encodeWith(permG, info)
	bestMetric := metric(best, permHard, permSoft)
	bestMsg := append([]int(nil), info...)
	nextMetric := negInf

	// 4. enumerate weight <= 2 error patterns over the K positions.
	tryFlip := func(flips []int) {
		candidate := append([]int(nil), info...)
		for _, f := range flips {
			candidate[f] ^= 1
		}
		cw := encodeWith(permG, candidate)
		m := metric(cw, permHard, permSoft)
		if m > bestMetric {
			nextMetric = bestMetric
			bestMetric = m
			bestMsg = candidate
		} else if m > nextMetric {
			nextMetric = m
		}
	}

	for i := 0; i < k; i++ {
		tryFlip([]int{i})
	}
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			tryFlip([]int{i, j})
		}
	}

	// 5. un-permute. bestMsg indexes bits by reliability order, so first
	// expand it to the full permuted-coordinate codeword, then scatter
	// through perm back to the original coordinate system; the code is
	// systematic with the message in the leading k positions.
	bestCW := encodeWith(permG, bestMsg)
	original := make([]int, n)
	for i, src := range perm {
		original[src] = bestCW[i]
	}
	return original[:k], bestMetric != nextMetric
}

const negInf = -1e18

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func permuteColumns(g [][]int, perm []int) [][]int {
	out := make([][]int, len(g))
	for i, row := range g {
		nr := make([]int, len(perm))
		for j, p := range perm {
			nr[j] = row[p]
		}
		out[i] = nr
	}
	return out
}

// rowEchelon reduces the k x n matrix m in place to row-echelon form
// over GF(2), searching for a nonzero pivot in the current column and,
// failing that, swapping in a later column (tracked and returned as
// pairs of swapped column indices so the caller can keep perm in sync).
func rowEchelon(m [][]int, k, n int) [][2]int {
	var swaps [][2]int
	row := 0
	for col := 0; col < n && row < k; col++ {
		pivot := -1
		for r := row; r < k; r++ {
			if m[r][col] != 0 {
				pivot = r
				break
			}
		}
		if pivot == -1 {
			continue
		}
		m[row], m[pivot] = m[pivot], m[row]
		if col != row {
			swapColumns(m, col, row)
			swaps = append(swaps, [2]int{col, row})
		}
		for r := 0; r < k; r++ {
			if r != row && m[r][row] != 0 {
				for c := 0; c < n; c++ {
					m[r][c] ^= m[row][c]
				}
			}
		}
		row++
	}
	return swaps
}

func swapColumns(m [][]int, a, b int) {
	for _, row := range m {
		row[a], row[b] = row[b], row[a]
	}
}

// systematize assumes rowEchelon already produced an identity in the
// leading k columns via its column-swap pivoting; this is a no-op
// placeholder kept for clarity at the call site (the reduction above
// both row-reduces and forces identity by construction).
func systematize(_ [][]int, _ int) {}

// encodeWith multiplies message (1xk) by generator g (kxn) over GF(2).
func encodeWith(g [][]int, message []int) []int {
	n := len(g[0])
	out := make([]int, n)
	for i, bit := range message {
		if bit == 0 {
			continue
		}
		for c := 0; c < n; c++ {
			out[c] ^= g[i][c]
		}
	}
	return out
}

// metric scores a candidate codeword by ⟨1-2*cw, soft⟩, the inner
// product of the bipolar codeword against the channel's soft values;
// it is maximised by the codeword whose hard decisions agree with the
// most reliable soft signs.
func metric(cw []int, _ []int, soft []float64) float64 {
	var score float64
	for i, c := range cw {
		bipolar := 1.0
		if c != 0 {
			bipolar = -1.0
		}
		score += bipolar * soft[i]
	}
	return score
}
