package analyzer

import (
	"strings"
	"unicode"

	"github.com/FranksOps/nichescout/internal/model"
)

// MaxMatchSentences caps how many description sentences are kept per keyword.
const MaxMatchSentences = 3

// MatchKeywords counts case-insensitive occurrences of each niche keyword in
// the titles and descriptions of items. Keywords that never occur are left
// out. Up to MaxMatchSentences description sentences containing the keyword
// are attached for context.
func MatchKeywords(items []model.AnalyzedItem, keywords []string) []model.KeywordMatch {
	if len(items) == 0 || len(keywords) == 0 {
		return nil
	}

	type itemText struct {
		id        string
		lower     string
		sentences []sentenceData
	}

	// Lowercase every item once, not once per keyword.
	texts := make([]itemText, len(items))
	for i, it := range items {
		texts[i] = itemText{
			id:        it.ItemID,
			lower:     strings.ToLower(it.Title + "\n" + it.Description),
			sentences: splitIntoSentences(it.Description),
		}
	}

	results := make([]model.KeywordMatch, 0, len(keywords))
	for _, kw := range keywords {
		lowerKw := strings.ToLower(strings.TrimSpace(kw))
		if lowerKw == "" {
			continue
		}

		m := model.KeywordMatch{Keyword: kw}
		for _, tx := range texts {
			c := strings.Count(tx.lower, lowerKw)
			if c == 0 {
				continue
			}
			m.Count += c
			m.ItemIDs = append(m.ItemIDs, tx.id)
			for _, sd := range tx.sentences {
				if len(m.Sentences) >= MaxMatchSentences {
					break
				}
				if strings.Contains(sd.lower, lowerKw) {
					m.Sentences = append(m.Sentences, sd.original)
				}
			}
		}
		if m.Count > 0 {
			results = append(results, m)
		}
	}
	return results
}

// sentenceData holds original and lowercase versions together
type sentenceData struct {
	original string
	lower    string
}

// splitIntoSentences splits on '.', '!', '?' and newlines, keeping the
// terminating punctuation. Empty fragments are dropped.
func splitIntoSentences(text string) []sentenceData {
	if len(text) == 0 {
		return nil
	}

	var sentences []sentenceData
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		sentences = append(sentences, sentenceData{original: s, lower: strings.ToLower(s)})
	}

	start := 0
	for i, r := range text {
		switch r {
		case '.', '!', '?', '\n':
			end := i + 1
			for end < len(text) && unicode.IsSpace(rune(text[end])) && text[end] != '\n' {
				end++
			}
			add(text[start:end])
			start = end
		}
	}
	if start < len(text) {
		add(text[start:])
	}
	return sentences
}
