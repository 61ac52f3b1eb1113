// Package vector provides sparse lexical document signatures and an
// in-memory similarity index. Signatures hold raw term frequencies;
// corpus-dependent rarity weighting is applied at comparison time, so a
// stored signature never goes stale when other documents come and go.
package vector

import (
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Signature maps a normalized term to its frequency in one document.
type Signature map[string]float64

// Dutch function words that carry no topical signal.
var stopwords = map[string]struct{}{
	"de": {}, "het": {}, "een": {}, "en": {}, "van": {}, "in": {}, "op": {},
	"te": {}, "met": {}, "voor": {}, "aan": {}, "bij": {}, "uit": {},
	"dat": {}, "die": {}, "is": {}, "zijn": {}, "wordt": {}, "worden": {},
	"niet": {}, "ook": {}, "als": {}, "naar": {}, "door": {}, "over": {},
	"of": {}, "om": {}, "maar": {}, "dan": {}, "deze": {}, "dit": {},
	"er": {}, "al": {}, "tot": {}, "onder": {}, "tussen": {},
}

// NewSignature tokenizes text into a term-frequency signature. Tokens are
// lowercased runs of letters and digits; single characters and stopwords
// are dropped. Text without usable terms yields an empty signature.
func NewSignature(text string) Signature {
	sig := Signature{}
	for _, tok := range tokenize(text) {
		sig[tok]++
	}
	return sig
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) < 2 {
			continue
		}
		if _, ok := stopwords[f]; ok {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Terms returns the signature's terms in sorted order.
func (s Signature) Terms() []string {
	terms := make([]string, 0, len(s))
	for t := range s {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// Project folds the signature into a dense vector of the given dimension
// by feature hashing, L2-normalized. The projection depends only on the
// signature itself, never on corpus state, so it is stable across
// re-indexing. An empty signature projects to the zero vector.
func (s Signature) Project(dim int) []float32 {
	vec := make([]float32, dim)
	if len(s) == 0 || dim <= 0 {
		return vec
	}
	for _, term := range s.Terms() {
		h := fnv.New64a()
		h.Write([]byte(term))
		sum := h.Sum64()
		idx := int(sum % uint64(dim))
		w := s[term]
		if sum>>63 == 1 {
			w = -w
		}
		vec[idx] += float32(w)
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
