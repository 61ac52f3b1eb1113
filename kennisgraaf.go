package kennisgraaf

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jbekkers/kennisgraaf/compliance"
	"github.com/jbekkers/kennisgraaf/graph"
	"github.com/jbekkers/kennisgraaf/loader"
	"github.com/jbekkers/kennisgraaf/metrics"
	"github.com/jbekkers/kennisgraaf/ner"
	"github.com/jbekkers/kennisgraaf/store"
	"github.com/jbekkers/kennisgraaf/suggest"
	"github.com/jbekkers/kennisgraaf/vector"
)

// Engine is the main entry point for the knowledge extraction engine.
type Engine interface {
	// Suggest runs the full metadata pipeline for one document: entity
	// extraction, graph ingestion, signature indexing, similarity ranking
	// and compliance assessment. Returns the assembled suggestion.
	// Re-suggesting a document replaces its earlier contributions.
	Suggest(ctx context.Context, documentID, text string, opts ...SuggestOption) (*suggest.Suggestion, error)

	// SuggestFile loads a file through the format registry and suggests
	// metadata for its text. The document ID defaults to the file name
	// without extension.
	SuggestFile(ctx context.Context, path string, opts ...SuggestOption) (*suggest.Suggestion, error)

	// IngestAll suggests metadata for a batch of documents concurrently.
	// Per-document failures are reported in the results, not returned.
	IngestAll(ctx context.Context, docs []DocumentInput) ([]IngestResult, error)

	// Assess runs a compliance assessment over a text without ingesting
	// it into the graph or the index.
	Assess(ctx context.Context, documentID, text string, opts ...SuggestOption) (*compliance.Result, error)

	// Extract returns the entity mentions for a text without ingesting it.
	Extract(ctx context.Context, text string) ([]ner.Mention, error)

	// Similar ranks indexed documents by signature similarity to the given
	// document, best match first.
	Similar(documentID string, topK int) ([]vector.Match, error)

	// Similarity returns the signature similarity between two indexed
	// documents, in [0, 1].
	Similarity(a, b string) (float64, error)

	// Search runs hybrid retrieval (projection similarity fused with
	// full-text match) over the stored documents. Requires persistence.
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)

	// Suggestion returns the stored suggestion for a document.
	Suggestion(ctx context.Context, documentID string) (*suggest.Suggestion, error)

	// Assessments returns the assessment audit trail, newest first. An
	// empty document ID selects all documents. Requires persistence.
	Assessments(ctx context.Context, documentID string, limit int) ([]store.AssessmentRecord, error)

	// Documents lists the known documents, newest first.
	Documents(ctx context.Context) ([]Document, error)

	// Remove deletes a document and all its derived data: graph
	// contributions, signature, projection, suggestion and assessments.
	Remove(ctx context.Context, documentID string) error

	// Neighbors returns the graph nodes adjacent to a node, heaviest edge
	// first. Passing relation kinds restricts to edges of those kinds.
	Neighbors(nodeID string, kinds ...string) ([]graph.Neighbor, error)

	// Path returns the edges along a shortest path between two nodes.
	// Nil without error when no path exists within maxHops.
	Path(from, to string, maxHops int) ([]graph.Edge, error)

	// Communities clusters the graph into entity communities. A resolution
	// of 0 uses the configured default; higher values favor smaller
	// communities.
	Communities(ctx context.Context, resolution float64) ([]graph.Community, error)

	// GraphStats summarizes the current graph.
	GraphStats() graph.Stats

	// Store returns the underlying store for diagnostic access. Nil when
	// the engine runs in memory.
	Store() *store.Store

	// Close cleanly shuts down the engine.
	Close() error
}

// Document describes a known document and its recorded metadata.
type Document struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Format         string `json:"format"`
	Domain         string `json:"domain,omitempty"`
	ObjectType     string `json:"object_type,omitempty"`
	Classification string `json:"classification,omitempty"`
	ContentHash    string `json:"content_hash"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// DocumentInput is one document offered for batch ingestion.
type DocumentInput struct {
	DocumentID     string `json:"document_id"`
	Text           string `json:"text"`
	Title          string `json:"title,omitempty"`
	Format         string `json:"format,omitempty"`
	Domain         string `json:"domain,omitempty"`
	ObjectType     string `json:"object_type,omitempty"`
	Classification string `json:"classification,omitempty"`
}

// IngestResult reports the outcome for one document in a batch.
type IngestResult struct {
	DocumentID string              `json:"document_id"`
	Suggestion *suggest.Suggestion `json:"suggestion,omitempty"`
	Error      error               `json:"error,omitempty"`
}

// SearchHit is one hybrid search result with a query-focused snippet of
// the document content.
type SearchHit struct {
	store.SearchResult
	Snippet string `json:"snippet,omitempty"`
}

// SuggestOption configures a single suggestion or assessment call.
type SuggestOption func(*suggestOptions)

type suggestOptions struct {
	domain         string
	objectType     string
	classification compliance.Classification
	title          string
	format         string
	documentID     string
}

// WithDomain sets the document's domain (zaak, project, beleid, expertise).
func WithDomain(domain string) SuggestOption {
	return func(o *suggestOptions) { o.domain = domain }
}

// WithObjectType sets the document's object type (besluit, document,
// email, ...).
func WithObjectType(objectType string) SuggestOption {
	return func(o *suggestOptions) { o.objectType = objectType }
}

// WithClassification passes the classification the source system declared.
// The assessed classification never drops below it.
func WithClassification(c compliance.Classification) SuggestOption {
	return func(o *suggestOptions) { o.classification = c }
}

// WithTitle sets the stored document title. Defaults to the document ID,
// or to the file name for SuggestFile.
func WithTitle(title string) SuggestOption {
	return func(o *suggestOptions) {
		if title != "" {
			o.title = title
		}
	}
}

// WithFormat records the source format (txt, md, pdf, xlsx). Defaults to
// txt, or to the detected format for SuggestFile.
func WithFormat(format string) SuggestOption {
	return func(o *suggestOptions) {
		if format != "" {
			o.format = format
		}
	}
}

// WithDocumentID overrides the document ID SuggestFile derives from the
// file name.
func WithDocumentID(id string) SuggestOption {
	return func(o *suggestOptions) { o.documentID = id }
}

func applyOptions(opts []SuggestOption) *suggestOptions {
	options := &suggestOptions{}
	for _, o := range opts {
		o(options)
	}
	return options
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg       Config
	extractor *ner.Extractor
	graph     *graph.Graph
	index     *vector.Index
	assessor  *compliance.Assessor
	suggester *suggest.Suggester
	loaders   *loader.Registry
	store     *store.Store // nil when running in memory

	// In-memory mode keeps documents and suggestions in process maps.
	mu          sync.RWMutex
	docs        map[string]Document
	suggestions map[string]*suggest.Suggestion
}

// New creates a new kennisgraaf engine with the given configuration. With
// persistence enabled the knowledge graph and vector index are rebuilt
// from the stored document contents before New returns.
func New(cfg Config) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	extractor, err := ner.New(
		ner.WithOrganizations(cfg.ExtraOrganizations...),
		ner.WithPlaces(cfg.ExtraPlaces...),
		ner.WithPolicyTerms(cfg.ExtraPolicyTerms...),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	g := graph.New(
		graph.WithResolution(cfg.Resolution),
		graph.WithMaxIterations(cfg.MaxIterations),
		graph.WithViolationHook(func(detail string) {
			metrics.InvariantViolations.Inc()
			slog.Error("graph self-repair",
				"error", fmt.Errorf("%w: %s", ErrInvariantViolation, detail))
		}),
	)

	index := vector.NewIndex()
	assessor := compliance.NewAssessor()

	e := &engine{
		cfg:       cfg,
		extractor: extractor,
		graph:     g,
		index:     index,
		assessor:  assessor,
		suggester: suggest.New(extractor, g, index, assessor, suggest.Config{
			MaxTags:      cfg.MaxTags,
			SimilarCount: cfg.SimilarCount,
		}),
		loaders: loader.NewRegistry(),
	}

	if cfg.InMemory {
		e.docs = make(map[string]Document)
		e.suggestions = make(map[string]*suggest.Suggestion)
		return e, nil
	}

	s, err := store.New(cfg.resolveDBPath(), cfg.ProjectionDim)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	e.store = s

	if err := e.replay(context.Background()); err != nil {
		s.Close()
		return nil, fmt.Errorf("rebuilding graph from store: %w", err)
	}
	return e, nil
}

// replay rebuilds the in-memory graph and vector index from the stored
// document contents, oldest first so ingestion order matches the original
// suggestion order.
func (e *engine) replay(ctx context.Context) error {
	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return err
	}

	for i := len(docs) - 1; i >= 0; i-- {
		d := docs[i]
		mentions, err := e.extractor.Extract(d.Content)
		if err != nil {
			slog.Warn("replay: skipping document", "doc_id", d.ID, "error", err)
			continue
		}
		for j := range mentions {
			mentions[j].DocumentID = d.ID
		}
		if err := e.graph.Ingest(d.ID, mentions); err != nil {
			slog.Warn("replay: graph ingest failed", "doc_id", d.ID, "error", err)
			continue
		}
		e.index.Insert(d.ID, vector.NewSignature(d.Content))
	}

	if len(docs) > 0 {
		slog.Info("replay: graph and index rebuilt",
			"documents", len(docs),
			"nodes", e.graph.NodeCount(), "edges", e.graph.EdgeCount())
	}
	e.syncGraphGauges()
	return nil
}

// Suggest runs the pipeline for one document and persists the outcome.
func (e *engine) Suggest(ctx context.Context, documentID, text string, opts ...SuggestOption) (*suggest.Suggestion, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: empty document id", ErrInvalidInput)
	}
	options := applyOptions(opts)

	start := time.Now()
	sug, err := e.suggester.Suggest(ctx, documentID, text,
		suggest.WithDomain(options.domain),
		suggest.WithObjectType(options.objectType),
		suggest.WithDeclaredClassification(options.classification),
	)
	if err != nil {
		return nil, translateErr(err)
	}

	metrics.SuggestDuration.Observe(time.Since(start).Seconds())
	metrics.DocumentsIngested.Inc()
	metrics.MentionsExtracted.Add(float64(len(sug.Mentions)))
	metrics.Assessments.WithLabelValues(sug.Compliance.Disclosure).Inc()
	e.syncGraphGauges()

	if err := e.persist(ctx, documentID, text, options, sug); err != nil {
		return nil, err
	}

	slog.Info("suggest: document processed",
		"doc_id", documentID,
		"mentions", len(sug.Mentions),
		"disclosure", sug.Compliance.Disclosure,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return sug, nil
}

// persist records the document, its projection, the suggestion payload and
// the assessment audit entry. In-memory mode keeps the document and the
// suggestion in process maps instead.
func (e *engine) persist(ctx context.Context, documentID, text string, options *suggestOptions, sug *suggest.Suggestion) error {
	title := options.title
	if title == "" {
		title = documentID
	}
	format := options.format
	if format == "" {
		format = "txt"
	}

	if e.store == nil {
		now := time.Now().UTC().Format(time.RFC3339)
		e.mu.Lock()
		doc, ok := e.docs[documentID]
		if !ok {
			doc = Document{ID: documentID, CreatedAt: now}
		}
		doc.Title = title
		doc.Format = format
		doc.Domain = options.domain
		doc.ObjectType = options.objectType
		doc.Classification = string(options.classification)
		doc.ContentHash = contentHash(text)
		doc.UpdatedAt = now
		e.docs[documentID] = doc
		e.suggestions[documentID] = sug
		e.mu.Unlock()
		return nil
	}

	rowID, err := e.store.UpsertDocument(ctx, store.Document{
		ID:             documentID,
		Title:          title,
		Format:         format,
		Domain:         options.domain,
		ObjectType:     options.objectType,
		Classification: string(options.classification),
		Content:        text,
	})
	if err != nil {
		return fmt.Errorf("upserting document: %w", err)
	}

	projection := vector.NewSignature(text).Project(e.store.ProjectionDim())
	if err := e.store.InsertProjection(ctx, rowID, projection); err != nil {
		return fmt.Errorf("storing projection: %w", err)
	}

	payload, err := json.Marshal(sug)
	if err != nil {
		return fmt.Errorf("encoding suggestion: %w", err)
	}
	if err := e.store.SaveSuggestion(ctx, rowID, payload); err != nil {
		return fmt.Errorf("storing suggestion: %w", err)
	}

	e.logAssessment(ctx, sug.Compliance)
	return nil
}

// SuggestFile loads a document file and runs the suggestion pipeline on
// its text.
func (e *engine) SuggestFile(ctx context.Context, path string, opts ...SuggestOption) (*suggest.Suggestion, error) {
	doc, err := e.loaders.Load(ctx, path)
	if err != nil {
		if errors.Is(err, loader.ErrUnsupportedFormat) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
		}
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	options := applyOptions(opts)
	documentID := options.documentID
	if documentID == "" {
		base := filepath.Base(path)
		documentID = strings.TrimSuffix(base, filepath.Ext(base))
	}

	// Loader metadata first so explicit caller options win.
	merged := append([]SuggestOption{WithTitle(doc.Title), WithFormat(doc.Format)}, opts...)
	return e.Suggest(ctx, documentID, doc.Text, merged...)
}

// IngestAll runs the suggestion pipeline for a batch of documents with
// bounded concurrency. The result slice is index-aligned with the input.
func (e *engine) IngestAll(ctx context.Context, docs []DocumentInput) ([]IngestResult, error) {
	results := make([]IngestResult, len(docs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.IngestConcurrency)
	for i, doc := range docs {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				results[i] = IngestResult{DocumentID: doc.DocumentID, Error: gCtx.Err()}
				return nil
			default:
			}
			sug, err := e.Suggest(gCtx, doc.DocumentID, doc.Text,
				WithTitle(doc.Title),
				WithFormat(doc.Format),
				WithDomain(doc.Domain),
				WithObjectType(doc.ObjectType),
				WithClassification(compliance.Classification(doc.Classification)),
			)
			results[i] = IngestResult{DocumentID: doc.DocumentID, Suggestion: sug, Error: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Assess runs a compliance assessment without mutating the graph or the
// index. The outcome is appended to the audit trail when persistence is
// enabled.
func (e *engine) Assess(ctx context.Context, documentID, text string, opts ...SuggestOption) (*compliance.Result, error) {
	options := applyOptions(opts)

	mentions, err := e.extractor.Extract(text)
	if err != nil {
		return nil, translateErr(err)
	}
	for i := range mentions {
		mentions[i].DocumentID = documentID
	}

	result, err := e.assessor.Assess(compliance.Input{
		DocumentID:             documentID,
		Text:                   text,
		Domain:                 options.domain,
		ObjectType:             options.objectType,
		DeclaredClassification: options.classification,
		Mentions:               mentions,
		Context:                compliance.ContextFromMentions(mentions),
	})
	if err != nil {
		return nil, translateErr(err)
	}

	metrics.Assessments.WithLabelValues(result.Disclosure).Inc()
	e.logAssessment(ctx, result)
	return &result, nil
}

// logAssessment appends an assessment to the audit trail. Best effort: the
// caller already holds the result.
func (e *engine) logAssessment(ctx context.Context, res compliance.Result) {
	if e.store == nil {
		return
	}
	payload, err := json.Marshal(res)
	if err != nil {
		payload = nil
	}
	if err := e.store.LogAssessment(ctx, store.AssessmentRecord{
		AssessmentID:   res.AssessmentID,
		DocID:          res.DocumentID,
		Classification: string(res.Classification),
		Privacy:        string(res.Privacy),
		WooRelevant:    res.WooRelevant,
		WooScore:       res.WooScore,
		Disclosure:     res.Disclosure,
		RetentionYears: res.RetentionYears,
		Permanent:      res.Permanent,
		Score:          res.Score,
		Payload:        payload,
	}); err != nil {
		slog.Warn("assessment audit write failed", "doc_id", res.DocumentID, "error", err)
	}
}

// Extract returns the entity mentions for a text.
func (e *engine) Extract(ctx context.Context, text string) ([]ner.Mention, error) {
	mentions, err := e.extractor.Extract(text)
	if err != nil {
		return nil, translateErr(err)
	}
	return mentions, nil
}

// Similar ranks indexed documents by similarity to the given document.
func (e *engine) Similar(documentID string, topK int) ([]vector.Match, error) {
	matches, err := e.index.RankSimilar(documentID, topK)
	if err != nil {
		return nil, translateErr(err)
	}
	return matches, nil
}

// Similarity returns the signature similarity between two documents.
func (e *engine) Similarity(a, b string) (float64, error) {
	score, err := e.index.Similarity(a, b)
	if err != nil {
		return 0, translateErr(err)
	}
	return score, nil
}

// Search runs hybrid retrieval over the stored documents and decorates
// each hit with a query-focused content snippet.
func (e *engine) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if e.store == nil {
		return nil, fmt.Errorf("%w: search requires persistence", ErrInvalidConfig)
	}
	if limit <= 0 {
		limit = 10
	}

	results, err := e.store.SearchDocuments(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	sig := vector.NewSignature(query)
	hits := make([]SearchHit, len(results))
	for i, r := range results {
		hits[i] = SearchHit{SearchResult: r}
		doc, err := e.store.GetDocument(ctx, r.DocID)
		if err != nil {
			continue
		}
		hits[i].Snippet = extractSnippet(doc.Content, sig)
	}
	return hits, nil
}

// Suggestion returns the stored suggestion for a document.
func (e *engine) Suggestion(ctx context.Context, documentID string) (*suggest.Suggestion, error) {
	if e.store == nil {
		e.mu.RLock()
		sug, ok := e.suggestions[documentID]
		e.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: suggestion for %s", ErrNotFound, documentID)
		}
		return sug, nil
	}

	payload, err := e.store.GetSuggestion(ctx, documentID)
	if err != nil {
		return nil, translateErr(err)
	}
	var sug suggest.Suggestion
	if err := json.Unmarshal(payload, &sug); err != nil {
		return nil, fmt.Errorf("decoding stored suggestion: %w", err)
	}
	return &sug, nil
}

// Assessments returns the assessment audit trail.
func (e *engine) Assessments(ctx context.Context, documentID string, limit int) ([]store.AssessmentRecord, error) {
	if e.store == nil {
		return nil, fmt.Errorf("%w: assessment history requires persistence", ErrInvalidConfig)
	}
	return e.store.ListAssessments(ctx, documentID, limit)
}

// Documents lists the known documents, newest first.
func (e *engine) Documents(ctx context.Context) ([]Document, error) {
	if e.store == nil {
		e.mu.RLock()
		docs := make([]Document, 0, len(e.docs))
		for _, d := range e.docs {
			docs = append(docs, d)
		}
		e.mu.RUnlock()
		sort.Slice(docs, func(i, j int) bool {
			if docs[i].CreatedAt != docs[j].CreatedAt {
				return docs[i].CreatedAt > docs[j].CreatedAt
			}
			return docs[i].ID < docs[j].ID
		})
		return docs, nil
	}

	stored, err := e.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, len(stored))
	for i, d := range stored {
		docs[i] = Document{
			ID:             d.ID,
			Title:          d.Title,
			Format:         d.Format,
			Domain:         d.Domain,
			ObjectType:     d.ObjectType,
			Classification: d.Classification,
			ContentHash:    d.ContentHash,
			CreatedAt:      d.CreatedAt,
			UpdatedAt:      d.UpdatedAt,
		}
	}
	return docs, nil
}

// Remove deletes a document and all its derived data.
func (e *engine) Remove(ctx context.Context, documentID string) error {
	if e.store != nil {
		if err := e.store.DeleteDocument(ctx, documentID); err != nil {
			return translateErr(err)
		}
	} else {
		e.mu.Lock()
		_, ok := e.docs[documentID]
		if ok {
			delete(e.docs, documentID)
			delete(e.suggestions, documentID)
		}
		e.mu.Unlock()
		if !ok {
			return fmt.Errorf("%w: document %s", ErrNotFound, documentID)
		}
	}

	e.graph.RemoveDocument(documentID)
	e.index.Remove(documentID)
	metrics.DocumentsRemoved.Inc()
	e.syncGraphGauges()

	slog.Info("document removed", "doc_id", documentID)
	return nil
}

// Neighbors returns the graph nodes adjacent to a node.
func (e *engine) Neighbors(nodeID string, kinds ...string) ([]graph.Neighbor, error) {
	neighbors, err := e.graph.Neighbors(nodeID, kinds...)
	if err != nil {
		return nil, translateErr(err)
	}
	return neighbors, nil
}

// Path returns the edges along a shortest path between two graph nodes.
func (e *engine) Path(from, to string, maxHops int) ([]graph.Edge, error) {
	path, err := e.graph.ShortestPath(from, to, maxHops)
	if err != nil {
		return nil, translateErr(err)
	}
	return path, nil
}

// Communities clusters the graph into entity communities.
func (e *engine) Communities(ctx context.Context, resolution float64) ([]graph.Community, error) {
	return e.graph.DetectCommunities(ctx, resolution)
}

// GraphStats summarizes the current graph.
func (e *engine) GraphStats() graph.Stats {
	return e.graph.Stats()
}

// Store returns the underlying store for diagnostic access.
func (e *engine) Store() *store.Store {
	return e.store
}

// Close shuts down the engine.
func (e *engine) Close() error {
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

func (e *engine) syncGraphGauges() {
	metrics.GraphNodes.Set(float64(e.graph.NodeCount()))
	metrics.GraphEdges.Set(float64(e.graph.EdgeCount()))
}

// translateErr maps package-level sentinels onto the root sentinels so
// callers can test with errors.Is against this package alone.
func translateErr(err error) error {
	switch {
	case errors.Is(err, ner.ErrInvalidInput),
		errors.Is(err, graph.ErrInvalidInput),
		errors.Is(err, vector.ErrInvalidInput),
		errors.Is(err, compliance.ErrInvalidInput):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	case errors.Is(err, graph.ErrNotFound),
		errors.Is(err, vector.ErrNotFound),
		errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, loader.ErrUnsupportedFormat):
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return err
}

// contentHash computes the SHA-256 hash of document content.
func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
