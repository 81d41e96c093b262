package match

import (
	"regexp"
	"strings"
)

var (
	urlRe      = regexp.MustCompile(`https?://\S+`)
	markupRe   = regexp.MustCompile("[*_~`#]")
	nonWordRe  = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	spaceSplit = strings.Fields
)

// Short fixed stop list; enough to keep glue words from dominating short
// titles without dragging in a stemming dependency.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "of": true,
	"in": true, "on": true, "at": true, "for": true, "and": true,
}

// Tokenize normalizes a title into comparison tokens: lowercased, URLs and
// markdown markup removed, punctuation stripped, stop-filtered.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ToLower(text)
	text = urlRe.ReplaceAllString(text, "")
	text = markupRe.ReplaceAllString(text, "")
	text = nonWordRe.ReplaceAllString(text, " ")
	var tokens []string
	for _, tok := range spaceSplit(text) {
		if stopWords[tok] {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// Dice is the Sørensen–Dice coefficient over two token multisets: a token
// repeated in one title only counts as far as the other repeats it too.
func Dice(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	counts := make(map[string]int, len(a))
	for _, t := range a {
		counts[t]++
	}
	inter := 0
	for _, t := range b {
		if counts[t] > 0 {
			counts[t]--
			inter++
		}
	}
	return 2 * float64(inter) / float64(len(a)+len(b))
}
