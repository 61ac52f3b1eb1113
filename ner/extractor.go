package ner

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrInvalidInput is returned when the input text cannot be decoded.
var ErrInvalidInput = errors.New("ner: invalid input")

// Extractor applies an ordered rule table to text. Construction compiles
// every rule; after that the extractor is immutable and safe for
// concurrent use.
type Extractor struct {
	rules []Rule
}

// Option configures an Extractor at construction time.
type Option func(*Extractor) error

// WithOrganizations adds organization names to the gazetteer. Hits match
// case-insensitively, normalize to the casing given here and carry
// confidence 1.0.
func WithOrganizations(names ...string) Option {
	return gazetteerOption("organisatie-lijst", TypeOrganization, 25, names)
}

// WithPlaces adds place names to the location gazetteer at confidence 1.0.
func WithPlaces(names ...string) Option {
	return gazetteerOption("plaats-lijst", TypeLocation, 85, names)
}

// WithPolicyTerms extends the policy vocabulary.
func WithPolicyTerms(terms ...string) Option {
	return func(e *Extractor) error {
		if len(terms) == 0 {
			return nil
		}
		re, err := compileAlternation(terms)
		if err != nil {
			return fmt.Errorf("ner: policy terms: %w", err)
		}
		e.rules = append(e.rules, Rule{
			Name:       "beleid-extra",
			Type:       TypePolicy,
			Priority:   121,
			Confidence: 0.80,
			re:         re,
			canon:      policyCanonical,
		})
		return nil
	}
}

// WithRule adds a custom pattern rule. The pattern's first capture group,
// when present, becomes the normalized form; otherwise the whole match
// does.
func WithRule(name, entityType, pattern string, priority int, confidence float64) Option {
	return func(e *Extractor) error {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("ner: rule %q: %w", name, err)
		}
		e.rules = append(e.rules, Rule{
			Name:       name,
			Type:       entityType,
			Priority:   priority,
			Confidence: confidence,
			re:         re,
			canon: func(groups []string) string {
				if len(groups) > 1 && groups[1] != "" {
					return collapse(groups[1])
				}
				return collapse(groups[0])
			},
		})
		return nil
	}
}

func gazetteerOption(name, entityType string, priority int, names []string) Option {
	return func(e *Extractor) error {
		if len(names) == 0 {
			return nil
		}
		re, err := compileAlternation(names)
		if err != nil {
			return fmt.Errorf("ner: %s: %w", name, err)
		}
		vocabulary := append([]string{}, names...)
		e.rules = append(e.rules, Rule{
			Name:       name,
			Type:       entityType,
			Priority:   priority,
			Confidence: 1.0,
			re:         re,
			canon: func(groups []string) string {
				return properCase(collapse(groups[1]), vocabulary)
			},
		})
		return nil
	}
}

func compileAlternation(names []string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)\b(` + alternation(names) + `)\b`)
}

// New builds an Extractor from the built-in Dutch rule table plus any
// options.
func New(opts ...Option) (*Extractor, error) {
	e := &Extractor{rules: builtinRules()}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].Priority < e.rules[j].Priority
	})
	return e, nil
}

type candidate struct {
	rule  *Rule
	start int
	end   int
	norm  string
}

// Extract runs every rule over text and resolves overlaps: higher-priority
// rules win, then longer spans, then earlier offsets. The returned
// mentions never overlap and are ordered by start offset. Text without
// any entities yields an empty slice, not an error.
func (e *Extractor) Extract(text string) ([]Mention, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: text is not valid utf-8", ErrInvalidInput)
	}
	if strings.TrimSpace(text) == "" {
		return []Mention{}, nil
	}

	var candidates []candidate
	for i := range e.rules {
		rule := &e.rules[i]
		for _, m := range rule.re.FindAllStringSubmatchIndex(text, -1) {
			groups := submatches(text, m)
			if rule.accept != nil && !rule.accept(groups) {
				continue
			}
			norm := collapse(groups[0])
			if rule.canon != nil {
				norm = rule.canon(groups)
			}
			if norm == "" {
				continue
			}
			candidates = append(candidates, candidate{rule: rule, start: m[0], end: m[1], norm: norm})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.rule.Priority != b.rule.Priority {
			return a.rule.Priority < b.rule.Priority
		}
		if al, bl := a.end-a.start, b.end-b.start; al != bl {
			return al > bl
		}
		return a.start < b.start
	})

	var kept []candidate
	for _, c := range candidates {
		if overlapsAny(kept, c) {
			continue
		}
		kept = append(kept, c)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].start < kept[j].start })

	starts := sentenceStarts(text)
	mentions := make([]Mention, 0, len(kept))
	for _, c := range kept {
		mentions = append(mentions, Mention{
			Text:       text[c.start:c.end],
			Normalized: c.norm,
			Type:       c.rule.Type,
			Start:      c.start,
			End:        c.end,
			Sentence:   sentenceIndex(starts, c.start),
			Confidence: c.rule.Confidence,
		})
	}
	return mentions, nil
}

func submatches(text string, m []int) []string {
	groups := make([]string, len(m)/2)
	for i := range groups {
		if m[2*i] >= 0 {
			groups[i] = text[m[2*i]:m[2*i+1]]
		}
	}
	return groups
}

func overlapsAny(kept []candidate, c candidate) bool {
	for _, k := range kept {
		if c.start < k.end && k.start < c.end {
			return true
		}
	}
	return false
}

// abbreviations whose trailing period does not end a sentence.
var abbreviations = map[string]struct{}{
	"art": {}, "dhr": {}, "mevr": {}, "mw": {}, "nr": {}, "o.a": {}, "bijv": {},
}

// sentenceStarts returns the byte offset of each sentence start. A
// sentence ends at '.', '!' or '?' followed by whitespace, except after
// initials ("J.") and common abbreviations.
func sentenceStarts(text string) []int {
	starts := []int{0}
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if r == '.' && isAbbreviation(text[:i]) {
			continue
		}
		j := i + 1
		for j < len(text) {
			r2, size := utf8.DecodeRuneInString(text[j:])
			if !unicode.IsSpace(r2) {
				break
			}
			j += size
		}
		if j > i+1 && j < len(text) {
			starts = append(starts, j)
		}
	}
	return starts
}

func isAbbreviation(prefix string) bool {
	end := len(prefix)
	start := end
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(prefix[:start])
		if unicode.IsSpace(r) {
			break
		}
		start -= size
	}
	word := prefix[start:end]
	if word == "" {
		return false
	}
	if r, _ := utf8.DecodeRuneInString(word); utf8.RuneCountInString(word) == 1 && unicode.IsUpper(r) {
		return true
	}
	_, ok := abbreviations[strings.ToLower(strings.TrimSuffix(word, "."))]
	return ok
}

func sentenceIndex(starts []int, offset int) int {
	return sort.SearchInts(starts, offset+1) - 1
}
