// Package suggest proposes structured metadata for documents. The suggester
// carries no algorithm of its own: it chains the entity extractor, the
// knowledge graph, the vector index and the compliance assessor, and shapes
// their combined output into one suggestion. Graph ingestion inside Suggest
// is the only externally visible mutation in the pipeline.
package suggest

import (
	"context"
	"log/slog"
	"sort"

	"github.com/jbekkers/kennisgraaf/compliance"
	"github.com/jbekkers/kennisgraaf/graph"
	"github.com/jbekkers/kennisgraaf/ner"
	"github.com/jbekkers/kennisgraaf/vector"
)

// Suggestion is the assembled metadata proposal for one document.
type Suggestion struct {
	DocumentID  string            `json:"document_id"`
	Mentions    []ner.Mention     `json:"mentions"`
	Similar     []vector.Match    `json:"similar_documents,omitempty"`
	Compliance  compliance.Result `json:"compliance"`
	Tags        []string          `json:"tags,omitempty"`
	SubjectArea string            `json:"subject_area,omitempty"`
}

// Config tunes the suggester. Zero values fall back to defaults.
type Config struct {
	// MaxTags caps the number of suggested tags (default 5).
	MaxTags int

	// SimilarCount is the number of similar documents to return (default 5).
	SimilarCount int
}

// Suggester orchestrates the extraction, graph, vector and compliance
// components. Safe for concurrent use; the components guard their own state.
type Suggester struct {
	extractor *ner.Extractor
	graph     *graph.Graph
	index     *vector.Index
	assessor  *compliance.Assessor
	cfg       Config
}

// New creates a suggester over the given components.
func New(extractor *ner.Extractor, g *graph.Graph, index *vector.Index, assessor *compliance.Assessor, cfg Config) *Suggester {
	if cfg.MaxTags == 0 {
		cfg.MaxTags = 5
	}
	if cfg.SimilarCount == 0 {
		cfg.SimilarCount = 5
	}
	return &Suggester{
		extractor: extractor,
		graph:     g,
		index:     index,
		assessor:  assessor,
		cfg:       cfg,
	}
}

// Option configures a single Suggest call.
type Option func(*callOptions)

type callOptions struct {
	domain     string
	objectType string
	declared   compliance.Classification
}

// WithDomain passes the document's domain (zaak, project, beleid,
// expertise) to the compliance assessment.
func WithDomain(domain string) Option {
	return func(o *callOptions) { o.domain = domain }
}

// WithObjectType passes the document's object type (besluit, document,
// email, ...) to the compliance assessment.
func WithObjectType(objectType string) Option {
	return func(o *callOptions) { o.objectType = objectType }
}

// WithDeclaredClassification passes the classification the source system
// declared. The assessed classification never drops below it.
func WithDeclaredClassification(c compliance.Classification) Option {
	return func(o *callOptions) { o.declared = c }
}

// Suggest runs the full pipeline for one document: extract entities, ingest
// them into the graph, upsert the vector signature, rank similar documents
// and assess compliance with the graph context. Re-suggesting the same
// document replaces its earlier graph and index contributions.
func (s *Suggester) Suggest(ctx context.Context, documentID, text string, opts ...Option) (*Suggestion, error) {
	options := &callOptions{}
	for _, o := range opts {
		o(options)
	}

	mentions, err := s.extractor.Extract(text)
	if err != nil {
		return nil, err
	}
	for i := range mentions {
		mentions[i].DocumentID = documentID
	}

	if err := s.graph.Ingest(documentID, mentions); err != nil {
		return nil, err
	}
	s.index.Insert(documentID, vector.NewSignature(text))

	similar, err := s.index.RankSimilar(documentID, s.cfg.SimilarCount)
	if err != nil {
		return nil, err
	}

	result, err := s.assessor.Assess(compliance.Input{
		DocumentID:             documentID,
		Text:                   text,
		Domain:                 options.domain,
		ObjectType:             options.objectType,
		DeclaredClassification: options.declared,
		Mentions:               mentions,
		Context:                s.graphContext(mentions),
	})
	if err != nil {
		return nil, err
	}

	sug := &Suggestion{
		DocumentID:  documentID,
		Mentions:    mentions,
		Similar:     similar,
		Compliance:  result,
		Tags:        suggestTags(mentions, s.cfg.MaxTags),
		SubjectArea: subjectArea(mentions),
	}
	slog.Debug("suggest: metadata assembled",
		"doc_id", documentID, "mentions", len(mentions),
		"similar", len(similar), "tags", len(sug.Tags))
	return sug, nil
}

// graphContext derives the compliance context from the document's mentions,
// then re-resolves law labels against the graph so context reflects the
// node labels after ingestion.
func (s *Suggester) graphContext(mentions []ner.Mention) compliance.GraphContext {
	gc := compliance.ContextFromMentions(mentions)
	for i, law := range gc.Laws {
		if node, err := s.graph.Node(graph.NodeID(ner.TypeLaw, law)); err == nil {
			gc.Laws[i] = node.Label
		}
	}
	sort.Strings(gc.Laws)
	return gc
}

// suggestTags ranks the document's entities by accumulated mention
// confidence and returns the top forms as type-prefixed tags.
func suggestTags(mentions []ner.Mention, maxTags int) []string {
	type entity struct {
		typ    string
		label  string
		weight float64
	}
	byID := map[string]*entity{}
	for _, m := range mentions {
		id := graph.NodeID(m.Type, m.Normalized)
		e, ok := byID[id]
		if !ok {
			e = &entity{typ: m.Type, label: m.Normalized}
			byID[id] = e
		}
		e.weight += m.Confidence
		if m.Normalized < e.label {
			e.label = m.Normalized
		}
	}

	entities := make([]*entity, 0, len(byID))
	for _, e := range byID {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].weight != entities[j].weight {
			return entities[i].weight > entities[j].weight
		}
		if entities[i].typ != entities[j].typ {
			return entities[i].typ < entities[j].typ
		}
		return entities[i].label < entities[j].label
	})

	tags := make([]string, 0, maxTags)
	for _, e := range entities {
		if len(tags) == maxTags {
			break
		}
		tags = append(tags, e.typ+":"+e.label)
	}
	return tags
}

// subjectArea returns the first policy term found in the document, reading
// order, as the suggested subject area.
func subjectArea(mentions []ner.Mention) string {
	for _, m := range mentions {
		if m.Type == ner.TypePolicy {
			return m.Normalized
		}
	}
	return ""
}
