package kennisgraaf

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jbekkers/kennisgraaf/compliance"
	"github.com/jbekkers/kennisgraaf/graph"
	"github.com/jbekkers/kennisgraaf/ner"
)

// besluitText is a small but representative decision document: one
// organization, one statute, a project, a case number, a date and a
// policy term.
const besluitText = "De gemeente Almere heeft op 12 maart 2024 een besluit genomen " +
	"over de omgevingsvergunning voor Project Windpark Pampus. " +
	"De Wet open overheid is van toepassing. Zaaknummer Z-2024-001234. " +
	"Het plan draagt bij aan duurzaamheid."

func newMemoryEngine(t *testing.T) Engine {
	t.Helper()
	eng, err := New(Config{InMemory: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}

func hasMention(mentions []ner.Mention, entityType, normalized string) bool {
	for _, m := range mentions {
		if m.Type == entityType && m.Normalized == normalized {
			return true
		}
	}
	return false
}

func TestSuggestEndToEnd(t *testing.T) {
	eng := newMemoryEngine(t)
	ctx := context.Background()

	sug, err := eng.Suggest(ctx, "doc-1", besluitText,
		WithDomain("zaak"), WithObjectType("besluit"))
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if sug.DocumentID != "doc-1" {
		t.Errorf("document id = %q, want doc-1", sug.DocumentID)
	}

	wantMentions := []struct{ entityType, normalized string }{
		{ner.TypeOrganization, "Gemeente Almere"},
		{ner.TypeLaw, "Wet open overheid (Woo)"},
		{ner.TypeProject, "Project Windpark Pampus"},
		{ner.TypeCaseNumber, "Z-2024-001234"},
		{ner.TypeDate, "12 maart 2024"},
		{ner.TypePolicy, "duurzaamheid"},
	}
	for _, w := range wantMentions {
		if !hasMention(sug.Mentions, w.entityType, w.normalized) {
			t.Errorf("missing mention %s %q in %+v", w.entityType, w.normalized, sug.Mentions)
		}
	}
	for _, m := range sug.Mentions {
		if m.DocumentID != "doc-1" {
			t.Errorf("mention %q not stamped with document id", m.Text)
		}
	}

	res := sug.Compliance
	if !res.WooRelevant {
		t.Error("besluit should be Woo-relevant")
	}
	if res.Disclosure != compliance.DisclosureOpenbaar {
		t.Errorf("disclosure = %q, want %q", res.Disclosure, compliance.DisclosureOpenbaar)
	}
	if res.RetentionYears != 20 || !res.Permanent {
		t.Errorf("retention = %d years permanent=%v, want 20 permanent", res.RetentionYears, res.Permanent)
	}
	if res.Classification != compliance.ClassOpenbaar {
		t.Errorf("classification = %q, want openbaar", res.Classification)
	}
	if res.Privacy != compliance.PrivacyNone {
		t.Errorf("privacy = %q, want none", res.Privacy)
	}
	if res.Score != 1.0 {
		t.Errorf("score = %v, want 1.0 (no issues)", res.Score)
	}

	if len(sug.Tags) == 0 || sug.Tags[0] != "law:Wet open overheid (Woo)" {
		t.Errorf("tags = %v, want the statute first", sug.Tags)
	}
	found := false
	for _, tag := range sug.Tags {
		if tag == "organization:Gemeente Almere" {
			found = true
		}
	}
	if !found {
		t.Errorf("tags = %v, missing organization:Gemeente Almere", sug.Tags)
	}
	if sug.SubjectArea != "duurzaamheid" {
		t.Errorf("subject area = %q, want duurzaamheid", sug.SubjectArea)
	}

	stats := eng.GraphStats()
	if stats.Documents != 1 {
		t.Errorf("graph documents = %d, want 1", stats.Documents)
	}
	if stats.NodesByType[ner.TypeOrganization] != 1 {
		t.Errorf("organization nodes = %d, want 1", stats.NodesByType[ner.TypeOrganization])
	}
}

func TestSuggestEmptyDocumentID(t *testing.T) {
	eng := newMemoryEngine(t)

	_, err := eng.Suggest(context.Background(), "", "tekst")
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestSuggestInvalidText(t *testing.T) {
	eng := newMemoryEngine(t)

	_, err := eng.Suggest(context.Background(), "doc-1", string([]byte{0xff, 0xfe}))
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestResuggestReplacesContributions(t *testing.T) {
	eng := newMemoryEngine(t)
	ctx := context.Background()

	if _, err := eng.Suggest(ctx, "doc-1", "De gemeente Almere verleent de vergunning voor het windpark."); err != nil {
		t.Fatalf("first Suggest: %v", err)
	}
	if _, err := eng.Suggest(ctx, "doc-1", "De provincie Flevoland stelt de omgevingsvisie vast."); err != nil {
		t.Fatalf("second Suggest: %v", err)
	}

	stats := eng.GraphStats()
	if stats.Documents != 1 {
		t.Fatalf("graph documents = %d, want 1 after re-suggest", stats.Documents)
	}

	// The old document's entity must be retracted.
	if _, err := eng.Neighbors(graph.NodeID(ner.TypeOrganization, "Gemeente Almere")); !errors.Is(err, ErrNotFound) {
		t.Errorf("old entity still present, err = %v", err)
	}

	neighbors, err := eng.Neighbors(graph.NodeID(ner.TypeOrganization, "Provincie Flevoland"))
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].Node.Label != "omgevingsvisie" {
		t.Errorf("neighbors = %+v, want the policy term", neighbors)
	}
}

func TestSimilarRanksRelatedDocumentFirst(t *testing.T) {
	eng := newMemoryEngine(t)
	ctx := context.Background()

	docs := map[string]string{
		"doc-a": "De vergunning voor het windpark in Almere is verleend. Het windpark levert duurzame energie.",
		"doc-b": "Het windpark bij Almere krijgt een vergunning voor duurzame energie.",
		"doc-c": "De subsidieregeling cultuureducatie wordt volgend jaar voortgezet.",
	}
	for id, text := range docs {
		if _, err := eng.Suggest(ctx, id, text); err != nil {
			t.Fatalf("Suggest(%s): %v", id, err)
		}
	}

	matches, err := eng.Similar("doc-a", 2)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].ID != "doc-b" {
		t.Errorf("best match = %s (%.3f), want doc-b", matches[0].ID, matches[0].Score)
	}
	if matches[0].Score <= matches[1].Score {
		t.Errorf("scores not descending: %.3f then %.3f", matches[0].Score, matches[1].Score)
	}

	ab, err := eng.Similarity("doc-a", "doc-b")
	if err != nil {
		t.Fatalf("Similarity: %v", err)
	}
	ba, err := eng.Similarity("doc-b", "doc-a")
	if err != nil {
		t.Fatalf("Similarity reversed: %v", err)
	}
	if ab != ba {
		t.Errorf("similarity not symmetric: %v vs %v", ab, ba)
	}
	if ab <= 0 || ab > 1 {
		t.Errorf("similarity = %v, want in (0, 1]", ab)
	}

	if _, err := eng.Similar("doc-x", 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("Similar unknown doc: err = %v, want ErrNotFound", err)
	}
}

func TestAssessDoesNotMutate(t *testing.T) {
	eng := newMemoryEngine(t)
	ctx := context.Background()

	res, err := eng.Assess(ctx, "doc-x", besluitText,
		WithDomain("zaak"), WithObjectType("besluit"))
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if res.AssessmentID == "" {
		t.Error("assessment id is empty")
	}
	if !res.WooRelevant || res.Disclosure != compliance.DisclosureOpenbaar {
		t.Errorf("assessment = %+v, want Woo-relevant and openbaar", res)
	}

	if stats := eng.GraphStats(); stats.Nodes != 0 || stats.Documents != 0 {
		t.Errorf("assessment mutated the graph: %+v", stats)
	}
	docs, err := eng.Documents(ctx)
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("assessment recorded a document: %+v", docs)
	}
	if _, err := eng.Suggestion(ctx, "doc-x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Suggestion after Assess: err = %v, want ErrNotFound", err)
	}
}

func TestExtractDoesNotIngest(t *testing.T) {
	eng := newMemoryEngine(t)

	mentions, err := eng.Extract(context.Background(), besluitText)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !hasMention(mentions, ner.TypeOrganization, "Gemeente Almere") {
		t.Errorf("mentions = %+v, missing Gemeente Almere", mentions)
	}
	if stats := eng.GraphStats(); stats.Nodes != 0 {
		t.Errorf("Extract mutated the graph: %+v", stats)
	}
}

func TestRemoveDeletesDerivedData(t *testing.T) {
	eng := newMemoryEngine(t)
	ctx := context.Background()

	if _, err := eng.Suggest(ctx, "doc-1", besluitText, WithDomain("zaak")); err != nil {
		t.Fatalf("Suggest doc-1: %v", err)
	}
	if _, err := eng.Suggest(ctx, "doc-2", "De provincie Flevoland stelt de omgevingsvisie vast."); err != nil {
		t.Fatalf("Suggest doc-2: %v", err)
	}

	if err := eng.Remove(ctx, "doc-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	docs, err := eng.Documents(ctx)
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "doc-2" {
		t.Errorf("documents after remove = %+v, want only doc-2", docs)
	}
	if _, err := eng.Suggestion(ctx, "doc-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Suggestion after remove: err = %v, want ErrNotFound", err)
	}
	if _, err := eng.Similar("doc-1", 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("Similar after remove: err = %v, want ErrNotFound", err)
	}
	if stats := eng.GraphStats(); stats.Documents != 1 {
		t.Errorf("graph documents = %d, want 1", stats.Documents)
	}

	if err := eng.Remove(ctx, "doc-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second remove: err = %v, want ErrNotFound", err)
	}
}

func TestDocumentsRecordMetadata(t *testing.T) {
	eng := newMemoryEngine(t)
	ctx := context.Background()

	sug, err := eng.Suggest(ctx, "doc-1", besluitText,
		WithTitle("Besluit windpark"),
		WithFormat("pdf"),
		WithDomain("zaak"),
		WithObjectType("besluit"),
		WithClassification(compliance.ClassIntern))
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}

	// The declared classification is a floor for the assessed one.
	if sug.Compliance.Classification != compliance.ClassIntern {
		t.Errorf("classification = %q, want intern", sug.Compliance.Classification)
	}

	docs, err := eng.Documents(ctx)
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d documents, want 1", len(docs))
	}
	d := docs[0]
	if d.Title != "Besluit windpark" || d.Format != "pdf" {
		t.Errorf("title/format = %q/%q", d.Title, d.Format)
	}
	if d.Domain != "zaak" || d.ObjectType != "besluit" || d.Classification != "intern" {
		t.Errorf("metadata = %+v", d)
	}
	if len(d.ContentHash) != 64 {
		t.Errorf("content hash = %q, want sha256 hex", d.ContentHash)
	}
	if _, err := time.Parse(time.RFC3339, d.CreatedAt); err != nil {
		t.Errorf("created_at %q: %v", d.CreatedAt, err)
	}
}

func TestSuggestionRoundTrip(t *testing.T) {
	eng := newMemoryEngine(t)
	ctx := context.Background()

	want, err := eng.Suggest(ctx, "doc-1", besluitText)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	got, err := eng.Suggestion(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Suggestion: %v", err)
	}
	if got.DocumentID != want.DocumentID || len(got.Mentions) != len(want.Mentions) {
		t.Errorf("stored suggestion differs: %+v vs %+v", got, want)
	}
	if got.Compliance.AssessmentID != want.Compliance.AssessmentID {
		t.Errorf("assessment id differs: %q vs %q",
			got.Compliance.AssessmentID, want.Compliance.AssessmentID)
	}
}

func TestSearchRequiresPersistence(t *testing.T) {
	eng := newMemoryEngine(t)

	if _, err := eng.Search(context.Background(), "windpark", 5); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Search in memory: err = %v, want ErrInvalidConfig", err)
	}
	if _, err := eng.Assessments(context.Background(), "", 5); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Assessments in memory: err = %v, want ErrInvalidConfig", err)
	}
}

func TestSuggestFile(t *testing.T) {
	eng := newMemoryEngine(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "besluit-2024.txt")
	if err := os.WriteFile(path, []byte(besluitText), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	sug, err := eng.SuggestFile(ctx, path, WithDomain("zaak"), WithObjectType("besluit"))
	if err != nil {
		t.Fatalf("SuggestFile: %v", err)
	}
	if sug.DocumentID != "besluit-2024" {
		t.Errorf("document id = %q, want besluit-2024", sug.DocumentID)
	}

	docs, err := eng.Documents(ctx)
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	if len(docs) != 1 || docs[0].Title != "besluit-2024.txt" || docs[0].Format != "txt" {
		t.Errorf("documents = %+v, want loader metadata recorded", docs)
	}
}

func TestSuggestFileDocumentIDOverride(t *testing.T) {
	eng := newMemoryEngine(t)

	path := filepath.Join(t.TempDir(), "notitie.md")
	if err := os.WriteFile(path, []byte("# Duurzaamheid\n\nDe gemeente Almere investeert."), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	sug, err := eng.SuggestFile(context.Background(), path, WithDocumentID("zaak-77"))
	if err != nil {
		t.Fatalf("SuggestFile: %v", err)
	}
	if sug.DocumentID != "zaak-77" {
		t.Errorf("document id = %q, want zaak-77", sug.DocumentID)
	}
}

func TestSuggestFileUnsupportedFormat(t *testing.T) {
	eng := newMemoryEngine(t)

	_, err := eng.SuggestFile(context.Background(), "/tmp/rapport.docx")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestIngestAll(t *testing.T) {
	eng := newMemoryEngine(t)

	inputs := []DocumentInput{
		{DocumentID: "doc-1", Text: besluitText, Domain: "zaak", ObjectType: "besluit"},
		{DocumentID: "doc-2", Text: "De provincie Flevoland stelt de omgevingsvisie vast."},
		{DocumentID: "", Text: "zonder id"},
	}
	results, err := eng.IngestAll(context.Background(), inputs)
	if err != nil {
		t.Fatalf("IngestAll: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	for i, in := range inputs {
		if results[i].DocumentID != in.DocumentID {
			t.Errorf("result %d: document id = %q, want %q", i, results[i].DocumentID, in.DocumentID)
		}
	}
	if results[0].Error != nil || results[0].Suggestion == nil {
		t.Errorf("result 0 = %+v, want a suggestion", results[0])
	}
	if results[1].Error != nil || results[1].Suggestion == nil {
		t.Errorf("result 1 = %+v, want a suggestion", results[1])
	}
	if !errors.Is(results[2].Error, ErrInvalidInput) {
		t.Errorf("result 2 error = %v, want ErrInvalidInput", results[2].Error)
	}

	if stats := eng.GraphStats(); stats.Documents != 2 {
		t.Errorf("graph documents = %d, want 2", stats.Documents)
	}
}

func TestIngestAllCanceledContext(t *testing.T) {
	eng := newMemoryEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := eng.IngestAll(ctx, []DocumentInput{
		{DocumentID: "doc-1", Text: "tekst"},
		{DocumentID: "doc-2", Text: "tekst"},
	})
	if err != nil {
		t.Fatalf("IngestAll: %v", err)
	}
	for i, r := range results {
		if r.Error == nil {
			t.Errorf("result %d: expected context error", i)
		}
	}
}

func TestPathBetweenEntities(t *testing.T) {
	eng := newMemoryEngine(t)
	ctx := context.Background()

	if _, err := eng.Suggest(ctx, "doc-1", "De gemeente Almere publiceert het besluit onder de Wet open overheid."); err != nil {
		t.Fatalf("Suggest doc-1: %v", err)
	}
	if _, err := eng.Suggest(ctx, "doc-2", "De provincie Flevoland behandelt verzoeken onder de Woo."); err != nil {
		t.Fatalf("Suggest doc-2: %v", err)
	}

	from := graph.NodeID(ner.TypeOrganization, "Gemeente Almere")
	to := graph.NodeID(ner.TypeOrganization, "Provincie Flevoland")
	law := graph.NodeID(ner.TypeLaw, "Wet open overheid (Woo)")

	path, err := eng.Path(from, to, 4)
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if len(path) != 2 {
		t.Fatalf("path = %+v, want two hops via the statute node", path)
	}
	for i, e := range path {
		if e.From != law && e.To != law {
			t.Errorf("hop %d = %+v, want the statute node as an endpoint", i, e)
		}
		if e.Kind == "" || e.Weight < 1 {
			t.Errorf("hop %d = %+v, want a relation kind and a positive weight", i, e)
		}
	}

	// The two organizations never co-occur, so one hop cannot reach.
	short, err := eng.Path(from, to, 1)
	if err != nil {
		t.Fatalf("Path maxHops=1: %v", err)
	}
	if short != nil {
		t.Errorf("path within one hop = %v, want nil", short)
	}

	if _, err := eng.Path(from, "organization:onbekend", 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("Path unknown node: err = %v, want ErrNotFound", err)
	}
}

func TestCommunities(t *testing.T) {
	eng := newMemoryEngine(t)
	ctx := context.Background()

	texts := map[string]string{
		"doc-1": "De gemeente Almere en de gemeente Lelystad werken samen aan woningbouw.",
		"doc-2": "De provincie Flevoland steunt de woningbouw in Almere.",
		"doc-3": "De AVG en de Archiefwet gelden voor het archief.",
	}
	for id, text := range texts {
		if _, err := eng.Suggest(ctx, id, text); err != nil {
			t.Fatalf("Suggest(%s): %v", id, err)
		}
	}

	communities, err := eng.Communities(ctx, 0)
	if err != nil {
		t.Fatalf("Communities: %v", err)
	}
	if len(communities) == 0 {
		t.Fatal("expected at least one community for a populated graph")
	}
	for _, c := range communities {
		if len(c.Members) == 0 {
			t.Errorf("community %s has no members", c.ID)
		}
		if c.Label == "" {
			t.Errorf("community %s has no label", c.ID)
		}
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{InMemory: true, ProjectionDim: -1}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}
