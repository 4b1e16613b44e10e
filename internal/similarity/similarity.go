// Package similarity implements the gestalt pattern-matching ratio and the
// character-level alignment used to score single-word pronunciation attempts.
//
// Both [Ratio] and [Align] operate on runes, not bytes, after trimming
// surrounding whitespace. Comparison is case-insensitive: runes are folded
// one-to-one with [unicode.ToLower] so that rune offsets in the folded and
// original strings stay identical, which keeps alignment ranges valid for the
// caller's original text.
//
// Matching blocks are located greedily: the longest common block is taken
// first, then the regions to its left and right are searched the same way.
// The search runs over an explicit work-list of index ranges, so arbitrarily
// long transcripts never grow the call stack.
//
// All functions are pure and safe for concurrent use.
package similarity

import (
	"math"
	"slices"
	"strings"
	"unicode"
)

// block is a maximal run of equal runes: a[i:i+size] == b[j:j+size].
type block struct {
	i, j, size int
}

// region is a pending sub-problem for the matching-block search.
type region struct {
	alo, ahi, blo, bhi int
}

// Ratio returns the gestalt similarity of a and b in [0, 1]:
// 2·M / (len(a)+len(b)) where M is the number of runes in matching blocks.
//
// Two empty strings are identical (1.0). An empty string against a non-empty
// one scores 0.0. Ratio is symmetric: the operands are put into a canonical
// order before the block search so tie-breaking cannot depend on argument
// order. [Align] uses the same blocks.
func Ratio(a, b string) float64 {
	fa, fb := fold(prepare(a)), fold(prepare(b))
	total := len(fa) + len(fb)
	if total == 0 {
		return 1.0
	}
	if len(fa) == 0 || len(fb) == 0 {
		return 0.0
	}
	matched := 0
	for _, m := range orientedBlocks(fa, fb) {
		matched += m.size
	}
	return 2.0 * float64(matched) / float64(total)
}

// Score returns Ratio(a, b) scaled to an integer percentage in [0, 100].
func Score(a, b string) int {
	return int(math.Round(Ratio(a, b) * 100))
}

// prepare trims surrounding whitespace and splits s into runes.
func prepare(s string) []rune {
	return []rune(strings.TrimSpace(s))
}

// fold lower-cases each rune independently so the result has exactly as many
// runes as the input.
func fold(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

// orientedBlocks returns the matching blocks of a and b, searched with the
// operands in canonical order and reported with i indexing a and j indexing
// b. Ratio and Align share it so the score and the alignment always describe
// the same matches.
func orientedBlocks(a, b []rune) []block {
	if slices.Compare(a, b) <= 0 {
		return matchingBlocks(a, b)
	}
	blocks := matchingBlocks(b, a)
	for k := range blocks {
		blocks[k].i, blocks[k].j = blocks[k].j, blocks[k].i
	}
	return blocks
}

// matchingBlocks returns the non-overlapping matching blocks of a and b in
// ascending order, with adjacent blocks merged. It does not append a sentinel.
func matchingBlocks(a, b []rune) []block {
	b2j := make(map[rune][]int, len(b))
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}

	var found []block
	work := []region{{0, len(a), 0, len(b)}}
	for len(work) > 0 {
		r := work[len(work)-1]
		work = work[:len(work)-1]

		m := longestMatch(a, b2j, r)
		if m.size == 0 {
			continue
		}
		found = append(found, m)
		if r.alo < m.i && r.blo < m.j {
			work = append(work, region{r.alo, m.i, r.blo, m.j})
		}
		if m.i+m.size < r.ahi && m.j+m.size < r.bhi {
			work = append(work, region{m.i + m.size, r.ahi, m.j + m.size, r.bhi})
		}
	}

	slices.SortFunc(found, func(x, y block) int {
		if x.i != y.i {
			return x.i - y.i
		}
		return x.j - y.j
	})

	merged := found[:0:0]
	for _, m := range found {
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if last.i+last.size == m.i && last.j+last.size == m.j {
				last.size += m.size
				continue
			}
		}
		merged = append(merged, m)
	}
	return merged
}

// longestMatch finds the longest block a[i:i+k] == b[j:j+k] inside r.
// Among equally long blocks the one starting earliest in a wins, and among
// those the one starting earliest in b.
func longestMatch(a []rune, b2j map[rune][]int, r region) block {
	best := block{i: r.alo, j: r.blo}
	// j2len[j] is the length of the match ending at a[i-1], b[j].
	j2len := map[int]int{}
	for i := r.alo; i < r.ahi; i++ {
		next := map[int]int{}
		for _, j := range b2j[a[i]] {
			if j < r.blo {
				continue
			}
			if j >= r.bhi {
				break
			}
			k := j2len[j-1] + 1
			next[j] = k
			if k > best.size {
				best = block{i: i - k + 1, j: j - k + 1, size: k}
			}
		}
		j2len = next
	}
	return best
}
