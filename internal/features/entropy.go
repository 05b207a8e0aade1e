package features

import "math"

// Entropy returns the base-2 Shannon entropy of a frequency distribution.
// It is 0 for an empty distribution or one with a single non-zero category.
func Entropy(counts []int) float64 {
	total := 0
	for _, c := range counts {
		if c > 0 {
			total += c
		}
	}
	if total == 0 {
		return 0
	}
	h := 0.0
	for _, c := range counts {
		if c <= 0 {
			continue
		}
		p := float64(c) / float64(total)
		h -= p * math.Log2(p)
	}
	// -0 and rounding noise below zero both collapse to 0.
	return math.Max(0, h)
}

func countsOf[K comparable](m map[K]int) []int {
	out := make([]int, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

func ratio(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}
