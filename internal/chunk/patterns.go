package chunk

import (
	"regexp"
	"strings"
)

// maxPatternMatches caps the matches kept per pattern.
const maxPatternMatches = 5

// pattern is a named regular expression whose matches are recorded in the
// chunk metadata. When group is non-zero only that submatch is recorded.
type pattern struct {
	key   string
	re    *regexp.Regexp
	group int
}

// RE2's \b only knows ASCII word characters, so the bilingual procedure
// pattern spells out its boundaries.
var patterns = []pattern{
	{key: "jac_reg", re: regexp.MustCompile(`(?i)JAC\s+REG\s+\d+-\d+`)},
	{key: "jac_sgl", re: regexp.MustCompile(`(?i)JAC\s+SGL\s+\d+-\d+\.\d+`)},
	{key: "sop", re: regexp.MustCompile(`(?i)\bSOP\b`)},
	{key: "procedure", re: regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])(Procedure|إجراء)(?:[^\p{L}\p{N}_]|$)`), group: 1},
}

// PatternKeys returns the metadata keys pattern matches are stored under.
func PatternKeys() []string {
	keys := make([]string, len(patterns))
	for i, p := range patterns {
		keys[i] = p.key
	}
	return keys
}

// MatchPatterns returns the distinct matches of every pattern found in text,
// in order of first appearance. Patterns without matches are omitted.
func MatchPatterns(text string) map[string][]string {
	out := make(map[string][]string)
	for _, p := range patterns {
		var found []string
		seen := make(map[string]bool)
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			s := m[p.group]
			if seen[s] {
				continue
			}
			seen[s] = true
			found = append(found, s)
			if len(found) == maxPatternMatches {
				break
			}
		}
		if len(found) > 0 {
			out[p.key] = found
		}
	}
	return out
}

func applyPatterns(meta map[string]string, text string) {
	for key, matches := range MatchPatterns(text) {
		meta[key] = strings.Join(matches, ", ")
	}
}
