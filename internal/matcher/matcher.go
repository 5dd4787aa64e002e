// Package matcher decides whether a submitted guess names a show and how many
// points a correct guess is worth. Everything here is pure.
package matcher

import (
	"math"
	"strings"
	"unicode"
)

const (
	// typoRatio is the share of a title's length tolerated as edit distance.
	typoRatio = 25 // percent
	// jaccardThreshold is the minimum word-set overlap counted as a match.
	jaccardThreshold = 0.75

	basePoints  = 100
	speedPoints = 1000
)

var articles = []string{"the ", "a ", "an "}

// Normalize lowercases and trims text, strips a leading article, removes
// punctuation and collapses runs of whitespace into single spaces.
func Normalize(text string) string {
	s := strings.TrimSpace(strings.ToLower(text))
	for _, article := range articles {
		if strings.HasPrefix(s, article) {
			s = s[len(article):]
			break
		}
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// IsMatch reports whether submission names correctTitle or one of its
// alternates. Each candidate is tried in order against an exact comparison, an
// edit-distance tolerance and a word overlap check.
func IsMatch(submission, correctTitle string, alternates []string) bool {
	guess := Normalize(submission)
	if guess == "" {
		return false
	}

	candidates := make([]string, 0, 1+len(alternates))
	candidates = append(candidates, correctTitle)
	candidates = append(candidates, alternates...)

	for _, raw := range candidates {
		c := Normalize(raw)
		if c == "" {
			continue
		}
		if guess == c {
			return true
		}
		if Levenshtein(guess, c) <= typoThreshold(c) {
			return true
		}
		if Jaccard(guess, c) >= jaccardThreshold {
			return true
		}
	}
	return false
}

func typoThreshold(candidate string) int {
	n := len([]rune(candidate)) * typoRatio / 100
	if n < 1 {
		return 1
	}
	return n
}

// Levenshtein returns the edit distance between a and b, counted in runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Jaccard returns |A∩B| / |A∪B| over the space-separated words of a and b.
// Two empty strings are considered identical.
func Jaccard(a, b string) float64 {
	wa, wb := wordSet(a), wordSet(b)
	if len(wa) == 0 && len(wb) == 0 {
		return 1
	}
	inter := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		set[w] = struct{}{}
	}
	return set
}

// Score awards points for a correct answer given after elapsedMs of a round
// lasting durationMs. Faster answers earn more; any answer earns at least 100.
func Score(elapsedMs, durationMs int64) int {
	if durationMs <= 0 {
		return basePoints
	}
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	ratio := 1 - float64(elapsedMs)/float64(durationMs)
	ratio = math.Max(0, math.Min(1, ratio))
	return int(math.Floor(speedPoints*ratio)) + basePoints
}
