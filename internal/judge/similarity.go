package judge

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/novahealth/nova/pkg/transcript"
)

// agreement scores how much the candidate texts agree with each other as the
// mean pairwise similarity in [0, 1]. Reports false when fewer than two
// candidates exist, since agreement is undefined there.
//
// Similarity per pair is the better of lexical Jaro-Winkler and phonetic
// overlap, so homophone disagreements ("patent" vs "patient") still register
// as near matches.
func agreement(candidates map[string]transcript.Candidate) (float64, bool) {
	names := sortedNames(candidates)
	if len(names) < 2 {
		return 0, false
	}

	var sum float64
	var pairs int
	for i := 0; i < len(names); i++ {
		for k := i + 1; k < len(names); k++ {
			sum += pairSimilarity(candidates[names[i]].Text, candidates[names[k]].Text)
			pairs++
		}
	}
	return sum / float64(pairs), true
}

// pairSimilarity compares two candidate texts. longTolerance is passed as
// false to use standard Jaro-Winkler scoring.
func pairSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	score := matchr.JaroWinkler(a, b, false)
	if p := phoneticOverlap(strings.Fields(a), strings.Fields(b)); p > score {
		score = p
	}
	return score
}

// phoneticOverlap is the Jaccard overlap of the Double Metaphone code sets of
// two token lists.
func phoneticOverlap(tokensA, tokensB []string) float64 {
	codesA := metaphoneCodes(tokensA)
	codesB := metaphoneCodes(tokensB)
	if len(codesA) == 0 || len(codesB) == 0 {
		return 0
	}

	var shared int
	for code := range codesA {
		if _, ok := codesB[code]; ok {
			shared++
		}
	}
	union := len(codesA) + len(codesB) - shared
	return float64(shared) / float64(union)
}

func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}
