package vector

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestNewSignature(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Signature
	}{
		{
			name: "lowercases and counts",
			text: "Stikstof stikstof STIKSTOF",
			want: Signature{"stikstof": 3},
		},
		{
			name: "drops stopwords and single characters",
			text: "de aanpak van de stikstof in 2024 is a b",
			want: Signature{"aanpak": 1, "stikstof": 1, "2024": 1},
		},
		{
			name: "splits on punctuation",
			text: "woningbouw, energietransitie; klimaatadaptatie.",
			want: Signature{"woningbouw": 1, "energietransitie": 1, "klimaatadaptatie": 1},
		},
		{
			name: "empty text yields empty signature",
			text: "  \n ",
			want: Signature{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewSignature(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NewSignature(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func newTestIndex(docs map[string]string) *Index {
	ix := NewIndex()
	for id, text := range docs {
		ix.Insert(id, NewSignature(text))
	}
	return ix
}

func TestRankSimilar(t *testing.T) {
	ix := newTestIndex(map[string]string{
		"1": "identieke samenvatting rond stikstof plus woningbouw",
		"2": "identieke samenvatting rond stikstof plus woningbouw",
		"3": "volledig ander onderwerp zonder enige overlap",
	})
	matches, err := ix.RankSimilar("1", 2)
	if err != nil {
		t.Fatalf("RankSimilar: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2: %+v", len(matches), matches)
	}
	if matches[0].ID != "2" || math.Abs(matches[0].Score-1.0) > 1e-9 {
		t.Errorf("top match = %+v, want id 2 with score 1.0", matches[0])
	}
	if matches[1].ID != "3" || matches[1].Score != 0 {
		t.Errorf("second match = %+v, want id 3 with score 0.0", matches[1])
	}
}

func TestRankSimilarTieBreaksOnID(t *testing.T) {
	ix := newTestIndex(map[string]string{
		"vraag": "klimaatadaptatie waterberging",
		"zz":    "klimaatadaptatie waterberging",
		"aa":    "klimaatadaptatie waterberging",
	})
	matches, err := ix.RankSimilar("vraag", 5)
	if err != nil {
		t.Fatalf("RankSimilar: %v", err)
	}
	if len(matches) != 2 || matches[0].ID != "aa" || matches[1].ID != "zz" {
		t.Fatalf("got %+v, want equal scores ordered aa, zz", matches)
	}
}

func TestRankSimilarBounds(t *testing.T) {
	ix := newTestIndex(map[string]string{"enig": "stikstof"})

	if _, err := ix.RankSimilar("enig", 0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("topK 0: err = %v, want ErrInvalidInput", err)
	}
	if _, err := ix.RankSimilar("onbekend", 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id: err = %v, want ErrNotFound", err)
	}
	matches, err := ix.RankSimilar("enig", 10)
	if err != nil {
		t.Fatalf("RankSimilar: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("single-document corpus: got %+v, want empty ranking", matches)
	}
}

func TestSimilaritySelf(t *testing.T) {
	ix := newTestIndex(map[string]string{
		"doc":  "stikstof woningbouw energietransitie",
		"leeg": "de het een",
	})
	got, err := ix.Similarity("doc", "doc")
	if err != nil {
		t.Fatalf("Similarity: %v", err)
	}
	if got != 1.0 {
		t.Errorf("self similarity = %v, want exactly 1.0", got)
	}
	got, err = ix.Similarity("leeg", "leeg")
	if err != nil {
		t.Fatalf("Similarity: %v", err)
	}
	if got != 0 {
		t.Errorf("empty-signature self similarity = %v, want 0.0", got)
	}
}

func TestSimilaritySymmetric(t *testing.T) {
	ix := newTestIndex(map[string]string{
		"a": "stikstof woningbouw beleid advies rapport",
		"b": "woningbouw rapport vergunning bezwaar",
	})
	ab, err := ix.Similarity("a", "b")
	if err != nil {
		t.Fatalf("Similarity: %v", err)
	}
	ba, err := ix.Similarity("b", "a")
	if err != nil {
		t.Fatalf("Similarity: %v", err)
	}
	if ab != ba {
		t.Errorf("Similarity(a,b) = %v, Similarity(b,a) = %v, want identical", ab, ba)
	}
	if ab <= 0 || ab >= 1 {
		t.Errorf("partial overlap similarity = %v, want strictly between 0 and 1", ab)
	}
}

func TestSimilarityUnknownID(t *testing.T) {
	ix := newTestIndex(map[string]string{"a": "stikstof"})
	if _, err := ix.Similarity("a", "b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestInsertReplaces(t *testing.T) {
	ix := NewIndex()
	ix.Insert("a", NewSignature("stikstof woningbouw"))
	ix.Insert("b", NewSignature("stikstof woningbouw"))

	got, err := ix.Similarity("a", "b")
	if err != nil {
		t.Fatalf("Similarity: %v", err)
	}
	if math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("similarity before replace = %v, want 1.0", got)
	}

	ix.Insert("b", NewSignature("energietransitie mobiliteit"))
	if ix.Len() != 2 {
		t.Errorf("Len = %d after replace, want 2", ix.Len())
	}
	got, err = ix.Similarity("a", "b")
	if err != nil {
		t.Fatalf("Similarity: %v", err)
	}
	if got != 0 {
		t.Errorf("similarity after replace = %v, want 0.0", got)
	}
}

func TestRemove(t *testing.T) {
	ix := newTestIndex(map[string]string{"a": "stikstof", "b": "stikstof"})
	ix.Remove("b")
	ix.Remove("b")

	if ix.Len() != 1 {
		t.Errorf("Len = %d, want 1", ix.Len())
	}
	if _, err := ix.Similarity("a", "b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound after removal", err)
	}
}

func TestSignatureCopy(t *testing.T) {
	ix := newTestIndex(map[string]string{"a": "stikstof stikstof"})
	sig, err := ix.Signature("a")
	if err != nil {
		t.Fatalf("Signature: %v", err)
	}
	sig["stikstof"] = 99

	again, err := ix.Signature("a")
	if err != nil {
		t.Fatalf("Signature: %v", err)
	}
	if again["stikstof"] != 2 {
		t.Errorf("stored signature mutated through the returned copy: %v", again)
	}
}

func TestProject(t *testing.T) {
	sig := NewSignature("stikstof woningbouw energietransitie stikstof")
	a := sig.Project(64)
	b := sig.Project(64)
	if len(a) != 64 {
		t.Fatalf("len = %d, want 64", len(a))
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("projection is not deterministic")
	}
	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1.0) > 1e-6 {
		t.Errorf("projection norm² = %v, want 1.0", norm)
	}

	zero := Signature{}.Project(8)
	for i, v := range zero {
		if v != 0 {
			t.Fatalf("empty signature projected non-zero at %d: %v", i, v)
		}
	}
}
