package services

import "strings"

// wordErrorRate is the word-level Levenshtein distance between hypothesis
// and reference, normalized by the reference length and capped at 1.
func wordErrorRate(hypothesis, reference string) float64 {
	hyp := strings.Fields(hypothesis)
	ref := strings.Fields(reference)
	if len(ref) == 0 {
		if len(hyp) == 0 {
			return 0
		}
		return 1
	}
	d := levenshtein(hyp, ref)
	rate := float64(d) / float64(len(ref))
	if rate > 1 {
		rate = 1
	}
	return rate
}

// characterErrorRate is the rune-level equivalent of wordErrorRate.
// Whitespace runs collapse to single spaces first so formatting edits do
// not count as errors.
func characterErrorRate(hypothesis, reference string) float64 {
	hyp := strings.Split(strings.Join(strings.Fields(hypothesis), " "), "")
	ref := strings.Split(strings.Join(strings.Fields(reference), " "), "")
	if len(ref) == 0 {
		if len(hyp) == 0 {
			return 0
		}
		return 1
	}
	d := levenshtein(hyp, ref)
	rate := float64(d) / float64(len(ref))
	if rate > 1 {
		rate = 1
	}
	return rate
}

// levenshtein computes the edit distance between two token sequences using
// two rolling rows.
func levenshtein(a, b []string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
