package analyzer

import (
	"sort"
	"strings"
	"unicode"

	"github.com/FranksOps/nichescout/internal/model"
)

// Tokenize lowercases text and splits it into maximal runs of letters and
// digits. Everything else, including apostrophes, underscores and emoji, is a
// delimiter and is dropped.
func Tokenize(text string) []string {
	lower := strings.ToLower(text)

	// Roughly one token per six bytes of title text.
	tokens := make([]string, 0, len(lower)/6+1)
	start := -1
	for i, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, lower[start:i])
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, lower[start:])
	}
	return tokens
}

// TopBigrams joins titles with a single space, tokenizes the result and
// returns the n most frequent adjacent token pairs. Ties are ordered by first
// occurrence in the token stream. Pairs spanning two titles are counted like
// any other pair.
func TopBigrams(titles []string, n int) []model.Bigram {
	if n <= 0 || len(titles) == 0 {
		return []model.Bigram{}
	}

	tokens := Tokenize(strings.Join(titles, " "))
	if len(tokens) < 2 {
		return []model.Bigram{}
	}

	counts := make(map[[2]string]int, len(tokens)-1)
	var firstSeen [][2]string
	for i := 0; i+1 < len(tokens); i++ {
		pair := [2]string{tokens[i], tokens[i+1]}
		if _, ok := counts[pair]; !ok {
			firstSeen = append(firstSeen, pair)
		}
		counts[pair]++
	}

	bigrams := make([]model.Bigram, len(firstSeen))
	for i, pair := range firstSeen {
		bigrams[i] = model.Bigram{Pair: pair, Count: counts[pair]}
	}
	sort.SliceStable(bigrams, func(i, j int) bool {
		return bigrams[i].Count > bigrams[j].Count
	})

	if n < len(bigrams) {
		bigrams = bigrams[:n]
	}
	return bigrams
}
