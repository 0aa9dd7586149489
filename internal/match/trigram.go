package match

import "strings"

// trigrams returns the set of padded three-rune windows over each word of s.
// Each word is padded with two leading spaces and one trailing space, so short
// words still produce grams and word starts weigh more than word ends.
func trigrams(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range strings.Fields(s) {
		r := []rune("  " + word + " ")
		for i := 0; i+3 <= len(r); i++ {
			set[string(r[i:i+3])] = struct{}{}
		}
	}
	return set
}

// Similarity returns the trigram similarity of two canonical strings in [0,1]:
// shared trigrams over the union of both sets. Two empty strings score 0.
func Similarity(a, b string) float64 {
	ta, tb := trigrams(a), trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for g := range ta {
		if _, ok := tb[g]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}
