package store

import (
	"regexp"
	"strings"
)

// wordRegex matches runs of letters, digits and underscores in any script.
var wordRegex = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Tokenize is the keyword tokenizer shared by indexing and querying.
// Tokens are lowercased words in order of appearance, repeats kept.
func Tokenize(text string) []string {
	words := wordRegex.FindAllString(text, -1)
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return words
}

// QueryTerms tokenizes a query and drops repeated terms.
func QueryTerms(query string) []string {
	tokens := Tokenize(query)
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
