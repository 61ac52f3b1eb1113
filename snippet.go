package kennisgraaf

import (
	"strings"

	"github.com/jbekkers/kennisgraaf/vector"
)

// snippetMaxLen is the approximate maximum character length for a snippet.
const snippetMaxLen = 300

// extractSnippet returns the one or two sentences of content that best
// match the query signature. Sentences are scored by the number of
// distinct query terms they share; ties keep the earliest sentence.
// Content without any term overlap yields an empty string.
func extractSnippet(content string, query vector.Signature) string {
	if len(query) == 0 || content == "" {
		return ""
	}

	sentences := splitSentences(content)
	if len(sentences) == 0 {
		return ""
	}

	scores := make([]int, len(sentences))
	for i, s := range sentences {
		for term := range vector.NewSignature(s) {
			if _, ok := query[term]; ok {
				scores[i]++
			}
		}
	}

	best := 0
	for i, sc := range scores {
		if sc > scores[best] {
			best = i
		}
	}
	if scores[best] == 0 {
		return ""
	}
	result := sentences[best]

	// Widen with the better-scoring adjacent sentence when it still fits.
	if len(result) < snippetMaxLen && len(sentences) > 1 {
		adj := -1
		for _, delta := range []int{1, -1} {
			idx := best + delta
			if idx < 0 || idx >= len(sentences) || scores[idx] == 0 {
				continue
			}
			if adj < 0 || scores[idx] > scores[adj] {
				adj = idx
			}
		}
		if adj >= 0 {
			combined := result + " " + sentences[adj]
			if adj < best {
				combined = sentences[adj] + " " + result
			}
			if len(combined) <= snippetMaxLen {
				result = combined
			}
		}
	}

	return result
}

// splitSentences splits text into sentences at period/question/exclamation
// boundaries followed by whitespace or end of string.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '?' || runes[i] == '!' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				if s := strings.TrimSpace(cur.String()); s != "" {
					sentences = append(sentences, s)
				}
				cur.Reset()
			}
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
