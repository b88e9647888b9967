// Package similarity scores how alike two short question texts are. It is used
// at authoring time to keep near-identical questions out of new quizzes.
package similarity

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// DefaultThreshold is the combined score at which two questions count as duplicates.
const DefaultThreshold = 0.7

// Content scores between mixedContentMin and the threshold still count as
// similar when the options reach mixedOptionsMin.
const (
	mixedContentMin = 0.5
	mixedOptionsMin = 0.7
)

// Weights blends Jaccard and cosine scores into one combined score.
type Weights struct {
	Jaccard float64
	Cosine  float64
}

// DefaultWeights favours term frequency over plain set overlap.
var DefaultWeights = Weights{Jaccard: 0.4, Cosine: 0.6}

func isCJK(r rune) bool {
	return r >= 0x4e00 && r <= 0x9fff
}

// tokens splits text into lower-cased Latin/digit words and single CJK
// characters. Everything else separates tokens.
func tokens(text string) []string {
	var (
		out  []string
		word strings.Builder
	)
	flush := func() {
		if word.Len() > 0 {
			out = append(out, word.String())
			word.Reset()
		}
	}
	for _, r := range text {
		r = unicode.ToLower(r)
		switch {
		case isCJK(r):
			flush()
			out = append(out, string(r))
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			word.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return out
}

func frequencies(text string) map[string]int {
	freq := make(map[string]int)
	for _, tok := range tokens(text) {
		freq[tok]++
	}
	return freq
}

// Jaccard returns the token-set overlap |A∩B| / |A∪B|, or 0 when both texts
// have no tokens.
func Jaccard(a, b string) float64 {
	setA := frequencies(a)
	setB := frequencies(b)
	union := len(setA)
	inter := 0
	for tok := range setB {
		if _, ok := setA[tok]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Cosine returns the cosine similarity of the term-frequency vectors of a and
// b, or 0 when either has no tokens.
func Cosine(a, b string) float64 {
	fa := frequencies(a)
	fb := frequencies(b)
	var dot, magA, magB float64
	for tok, na := range fa {
		magA += float64(na * na)
		dot += float64(na * fb[tok])
	}
	for _, nb := range fb {
		magB += float64(nb * nb)
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// Levenshtein returns 1 - distance/maxLen over the lower-cased runes of a and
// b. Two empty strings are identical.
func Levenshtein(a, b string) float64 {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	maxLen := max(len(ra), len(rb))
	if maxLen == 0 {
		return 1
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1]
				continue
			}
			curr[j] = 1 + min(prev[j], curr[j-1], prev[j-1])
		}
		prev, curr = curr, prev
	}
	return 1 - float64(prev[len(rb)])/float64(maxLen)
}

// Combined blends Jaccard and cosine with DefaultWeights.
func Combined(a, b string) float64 {
	return CombinedWeighted(a, b, DefaultWeights)
}

// CombinedWeighted blends Jaccard and cosine with w.
func CombinedWeighted(a, b string, w Weights) float64 {
	return Jaccard(a, b)*w.Jaccard + Cosine(a, b)*w.Cosine
}

// Item is the part of a question that similarity looks at.
type Item struct {
	Content string
	Options []string
}

// AreSimilar reports whether a and b are near-duplicates: their content
// reaches threshold, or their content is moderately similar and both carry
// options that are themselves similar.
func AreSimilar(a, b Item, threshold float64) bool {
	content := Combined(a.Content, b.Content)
	if content >= threshold {
		return true
	}
	if len(a.Options) == 0 || len(b.Options) == 0 {
		return false
	}
	options := Combined(strings.Join(a.Options, " "), strings.Join(b.Options, " "))
	return content >= mixedContentMin && options >= mixedOptionsMin
}

// Match is a candidate whose content similarity reached the threshold.
type Match struct {
	Index      int     // position in the candidate slice
	Similarity float64 // combined content score
}

// FindSimilar returns the candidates whose combined content similarity to
// target is at least threshold, most similar first.
func FindSimilar(target Item, candidates []Item, threshold float64) []Match {
	var matches []Match
	for i, c := range candidates {
		if s := Combined(target.Content, c.Content); s >= threshold {
			matches = append(matches, Match{Index: i, Similarity: s})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches
}
