package vector

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	// ErrNotFound is returned when a document id is not in the index.
	ErrNotFound = errors.New("vector: document not found")

	// ErrInvalidInput is returned for out-of-range arguments.
	ErrInvalidInput = errors.New("vector: invalid input")
)

// Match is one ranked similarity result.
type Match struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Index holds document signatures and answers similarity queries. Reads
// take a shared lock; inserts and removals take an exclusive one.
type Index struct {
	mu   sync.RWMutex
	docs map[string]Signature
	df   map[string]int
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		docs: make(map[string]Signature),
		df:   make(map[string]int),
	}
}

// Insert stores a signature under id, replacing any previous signature for
// the same document and adjusting term statistics for both.
func (ix *Index) Insert(id string, sig Signature) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if old, ok := ix.docs[id]; ok {
		ix.retract(old)
	}
	ix.docs[id] = sig
	for term := range sig {
		ix.df[term]++
	}
}

// Remove deletes a document from the index. Removing an unknown id is a
// no-op.
func (ix *Index) Remove(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	sig, ok := ix.docs[id]
	if !ok {
		return
	}
	ix.retract(sig)
	delete(ix.docs, id)
}

func (ix *Index) retract(sig Signature) {
	for term := range sig {
		ix.df[term]--
		if ix.df[term] <= 0 {
			delete(ix.df, term)
		}
	}
}

// Len reports the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Has reports whether id is indexed.
func (ix *Index) Has(id string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.docs[id]
	return ok
}

// Signature returns the stored signature for id.
func (ix *Index) Signature(id string) (Signature, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	sig, ok := ix.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	out := make(Signature, len(sig))
	for t, w := range sig {
		out[t] = w
	}
	return out, nil
}

// Similarity computes the cosine similarity between two indexed documents.
// Term weights are scaled by corpus rarity at comparison time, applied
// identically to both sides, so Similarity(a, b) == Similarity(b, a) and a
// document always scores 1.0 against itself unless its signature is empty,
// in which case every similarity involving it is 0.0.
func (ix *Index) Similarity(a, b string) (float64, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	sa, ok := ix.docs[a]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, a)
	}
	sb, ok := ix.docs[b]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, b)
	}
	if a == b {
		if len(sa) == 0 {
			return 0, nil
		}
		return 1, nil
	}
	return ix.cosine(sa, sb), nil
}

// RankSimilar returns the topK documents most similar to id, best first.
// The query document itself is excluded. Equal scores order by id so the
// ranking is deterministic. topK larger than the corpus returns everything
// else; an index with one document returns an empty ranking.
func (ix *Index) RankSimilar(id string, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", ErrInvalidInput, topK)
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	query, ok := ix.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	matches := make([]Match, 0, len(ix.docs)-1)
	for other, sig := range ix.docs {
		if other == id {
			continue
		}
		matches = append(matches, Match{ID: other, Score: ix.cosine(query, sig)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// cosine must be called with the read lock held. Terms are accumulated in
// sorted order so the result is reproducible and exactly symmetric.
func (ix *Index) cosine(a, b Signature) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot float64
	for _, term := range sharedTerms(a, b) {
		w := ix.idf(term)
		dot += a[term] * w * b[term] * w
	}
	if dot == 0 {
		return 0
	}
	na := ix.norm(a)
	nb := ix.norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	c := dot / (na * nb)
	if c > 1 {
		return 1
	}
	if c < -1 {
		return -1
	}
	return c
}

func sharedTerms(a, b Signature) []string {
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	shared := make([]string, 0, len(small))
	for term := range small {
		if _, ok := large[term]; ok {
			shared = append(shared, term)
		}
	}
	sort.Strings(shared)
	return shared
}

func (ix *Index) norm(sig Signature) float64 {
	var sum float64
	for _, term := range sig.Terms() {
		w := sig[term] * ix.idf(term)
		sum += w * w
	}
	return math.Sqrt(sum)
}

// idf down-weights terms common across the corpus. A term present in every
// document still contributes, just weakly.
func (ix *Index) idf(term string) float64 {
	return 1 + math.Log(float64(len(ix.docs))/float64(1+ix.df[term]))
}
