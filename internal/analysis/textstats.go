package analysis

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"
)

var hashtagPattern = regexp.MustCompile(`#\w+`)

var stopWords = map[string]struct{}{
	"that": {}, "this": {}, "with": {}, "from": {}, "they": {}, "have": {}, "been": {},
	"will": {}, "their": {}, "what": {}, "there": {}, "when": {}, "would": {}, "could": {},
	"should": {}, "about": {}, "which": {}, "after": {}, "before": {}, "while": {}, "where": {},
	"here": {}, "then": {}, "than": {}, "them": {}, "these": {}, "those": {}, "though": {},
}

// significantWords tokenizes lowercased text and keeps word tokens longer than
// three characters that are not stop words.
func significantWords(text string) []string {
	doc, err := prose.NewDocument(strings.ToLower(text),
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		return nil
	}

	var words []string
	for _, tok := range doc.Tokens() {
		w := tok.Text
		if len(w) <= 3 || !isWord(w) {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		words = append(words, w)
	}
	return words
}

func isWord(s string) bool {
	for _, r := range s {
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func hashtags(text string) []string {
	return hashtagPattern.FindAllString(strings.ToLower(text), -1)
}

type counted struct {
	key   string
	count int
}

// topCounts orders keys by count descending, then key ascending, and keeps n.
func topCounts(counts map[string]int, n int) []counted {
	out := make([]counted, 0, len(counts))
	for k, c := range counts {
		out = append(out, counted{key: k, count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
