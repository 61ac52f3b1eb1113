// Package graph maintains the in-memory knowledge graph: typed nodes keyed
// by (type, normalized form), weighted undirected edges, and per-document
// bookkeeping that makes ingestion idempotent. Writers take an exclusive
// lock, readers a shared one, so queries stay consistent during ingestion.
package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/jbekkers/kennisgraaf/ner"
)

var (
	// ErrNotFound is returned when a node or document id is unknown.
	ErrNotFound = errors.New("graph: not found")

	// ErrInvalidInput is returned for malformed arguments.
	ErrInvalidInput = errors.New("graph: invalid input")
)

// Node is a read-only snapshot of one graph node.
type Node struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Label      string   `json:"label"`
	Confidence float64  `json:"confidence"`
	Mentions   int      `json:"mentions"`
	Documents  []string `json:"documents,omitempty"`
}

// Edge is a read-only snapshot of one undirected edge. From is always the
// lexicographically smaller endpoint. Weight counts the documents in which
// the pair co-occurs, so it is always at least 1.
type Edge struct {
	From      string   `json:"from"`
	To        string   `json:"to"`
	Kind      string   `json:"kind"`
	Weight    float64  `json:"weight"`
	Documents []string `json:"documents,omitempty"`
}

// DocumentMatch pairs a document id with the number of graph nodes it
// shares with the query document.
type DocumentMatch struct {
	ID             string `json:"id"`
	SharedEntities int    `json:"shared_entities"`
}

// Stats summarizes the current graph state.
type Stats struct {
	Nodes       int            `json:"nodes"`
	Edges       int            `json:"edges"`
	Documents   int            `json:"documents"`
	Communities int            `json:"communities"`
	Density     float64        `json:"density"`
	NodesByType map[string]int `json:"nodes_by_type"`
}

// ViolationHook is invoked once per repaired invariant violation, after the
// repair has been applied. The hook must not call back into the graph.
type ViolationHook func(detail string)

type docNodeStat struct {
	count      int
	confidence float64
	label      string
}

type nodeState struct {
	typ  string
	docs map[string]docNodeStat
}

type edgeKey struct {
	a, b, kind string
}

type edgeState struct {
	docs map[string]struct{}
}

type contribution struct {
	nodes map[string]docNodeStat
	edges map[edgeKey]struct{}
}

// Graph is the mutable knowledge graph. The zero value is not usable; call
// New.
type Graph struct {
	mu          sync.RWMutex
	nodes       map[string]*nodeState
	edges       map[edgeKey]*edgeState
	docs        map[string]*contribution
	communities []Community

	resolution    float64
	maxIterations int
	violation     ViolationHook
}

// Option configures a Graph.
type Option func(*Graph)

// WithResolution sets the resolution parameter for community detection.
// Values above 1.0 favor smaller communities.
func WithResolution(gamma float64) Option {
	return func(g *Graph) {
		if gamma > 0 {
			g.resolution = gamma
		}
	}
}

// WithMaxIterations caps the number of merge steps in one community
// detection run.
func WithMaxIterations(n int) Option {
	return func(g *Graph) {
		if n > 0 {
			g.maxIterations = n
		}
	}
}

// WithViolationHook registers a callback for repaired invariant
// violations.
func WithViolationHook(hook ViolationHook) Option {
	return func(g *Graph) { g.violation = hook }
}

// New returns an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		nodes:         make(map[string]*nodeState),
		edges:         make(map[edgeKey]*edgeState),
		docs:          make(map[string]*contribution),
		resolution:    1.0,
		maxIterations: 200,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Ingest replaces the graph contribution of docID with the given mentions.
// Ingesting the same document twice with the same mentions leaves the graph
// unchanged; ingesting it with different mentions first retracts the old
// contribution. Mentions sharing a document form one edge per node pair per
// relation kind, contributing weight 1 regardless of how often the pair
// co-occurs within the document.
func (g *Graph) Ingest(docID string, mentions []ner.Mention) error {
	if strings.TrimSpace(docID) == "" {
		return fmt.Errorf("%w: empty document id", ErrInvalidInput)
	}
	contrib := buildContribution(mentions)

	g.mu.Lock()
	g.retractLocked(docID)
	for id, stat := range contrib.nodes {
		ns, ok := g.nodes[id]
		if !ok {
			ns = &nodeState{typ: nodeType(id), docs: make(map[string]docNodeStat)}
			g.nodes[id] = ns
		}
		ns.docs[docID] = stat
	}
	for key := range contrib.edges {
		es, ok := g.edges[key]
		if !ok {
			es = &edgeState{docs: make(map[string]struct{})}
			g.edges[key] = es
		}
		es.docs[docID] = struct{}{}
	}
	g.docs[docID] = contrib
	repaired := g.pruneLocked()
	nodeCount, edgeCount := len(g.nodes), len(g.edges)
	g.mu.Unlock()

	g.reportRepairs(repaired)
	slog.Debug("graph: document ingested",
		"doc", docID, "mentions", len(mentions),
		"nodes", nodeCount, "edges", edgeCount)
	return nil
}

// RemoveDocument retracts a document's contribution. It reports whether the
// document was known.
func (g *Graph) RemoveDocument(docID string) bool {
	g.mu.Lock()
	_, ok := g.docs[docID]
	if !ok {
		g.mu.Unlock()
		return false
	}
	g.retractLocked(docID)
	repaired := g.pruneLocked()
	g.mu.Unlock()

	g.reportRepairs(repaired)
	slog.Debug("graph: document removed", "doc", docID)
	return true
}

// Repair scans for edges whose endpoints no longer exist, removes them and
// reports how many were pruned. A healthy graph repairs nothing.
func (g *Graph) Repair() int {
	g.mu.Lock()
	repaired := g.pruneLocked()
	g.mu.Unlock()

	g.reportRepairs(repaired)
	return len(repaired)
}

type nodeInfo struct {
	typ       string
	label     string
	sentences map[int]struct{}
}

func buildContribution(mentions []ner.Mention) *contribution {
	contrib := &contribution{
		nodes: make(map[string]docNodeStat),
		edges: make(map[edgeKey]struct{}),
	}
	info := make(map[string]*nodeInfo)
	for _, m := range mentions {
		if m.Normalized == "" || m.Type == "" {
			continue
		}
		id := NodeID(m.Type, m.Normalized)
		stat := contrib.nodes[id]
		stat.count++
		if m.Confidence > stat.confidence {
			stat.confidence = m.Confidence
		}
		if stat.label == "" || m.Normalized < stat.label {
			stat.label = m.Normalized
		}
		contrib.nodes[id] = stat

		inf, ok := info[id]
		if !ok {
			inf = &nodeInfo{typ: m.Type, label: stat.label, sentences: make(map[int]struct{})}
			info[id] = inf
		}
		inf.label = stat.label
		inf.sentences[m.Sentence] = struct{}{}
	}

	ids := make([]string, 0, len(info))
	for id := range info {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			kind := relationKind(info[ids[i]], info[ids[j]])
			contrib.edges[edgeKey{a: ids[i], b: ids[j], kind: kind}] = struct{}{}
		}
	}
	return contrib
}

// relationKind picks the most specific kind a node pair supports:
// administrative containment, then statute references within one sentence,
// then plain co-occurrence.
func relationKind(a, b *nodeInfo) string {
	pa, am, ap := place(a.typ, a.label)
	pb, bm, bp := place(b.typ, b.label)
	if containedIn(pa, am, pb, bp) || containedIn(pb, bm, pa, ap) {
		return KindHierarchy
	}
	if (a.typ == ner.TypeLaw || b.typ == ner.TypeLaw) && shareSentence(a, b) {
		return KindReference
	}
	return KindCoOccurrence
}

func shareSentence(a, b *nodeInfo) bool {
	small, large := a.sentences, b.sentences
	if len(large) < len(small) {
		small, large = large, small
	}
	for s := range small {
		if _, ok := large[s]; ok {
			return true
		}
	}
	return false
}

func nodeType(id string) string {
	if i := strings.IndexByte(id, ':'); i >= 0 {
		return id[:i]
	}
	return ""
}

func (g *Graph) retractLocked(docID string) {
	contrib, ok := g.docs[docID]
	if !ok {
		return
	}
	for key := range contrib.edges {
		if es, ok := g.edges[key]; ok {
			delete(es.docs, docID)
			if len(es.docs) == 0 {
				delete(g.edges, key)
			}
		}
	}
	for id := range contrib.nodes {
		if ns, ok := g.nodes[id]; ok {
			delete(ns.docs, docID)
			if len(ns.docs) == 0 {
				delete(g.nodes, id)
			}
		}
	}
	delete(g.docs, docID)
}

func (g *Graph) pruneLocked() []string {
	var pruned []string
	for key := range g.edges {
		_, okA := g.nodes[key.a]
		_, okB := g.nodes[key.b]
		if okA && okB {
			continue
		}
		delete(g.edges, key)
		pruned = append(pruned, fmt.Sprintf("dangling edge %s -- %s (%s)", key.a, key.b, key.kind))
	}
	sort.Strings(pruned)
	return pruned
}

func (g *Graph) reportRepairs(details []string) {
	for _, d := range details {
		slog.Warn("graph: repaired invariant violation", "detail", d)
		if g.violation != nil {
			g.violation(d)
		}
	}
}

// Node returns a snapshot of the node with the given id.
func (g *Graph) Node(id string) (Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ns, ok := g.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	return snapshotNode(id, ns), nil
}

// Nodes returns snapshots of all nodes, ordered by id.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Node, 0, len(g.nodes))
	for id, ns := range g.nodes {
		out = append(out, snapshotNode(id, ns))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edge returns the edge between two nodes with the given kind. Endpoint
// order does not matter.
func (g *Graph) Edge(from, to, kind string) (Edge, error) {
	if to < from {
		from, to = to, from
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	es, ok := g.edges[edgeKey{a: from, b: to, kind: kind}]
	if !ok {
		return Edge{}, fmt.Errorf("%w: edge %s -- %s (%s)", ErrNotFound, from, to, kind)
	}
	return snapshotEdge(edgeKey{a: from, b: to, kind: kind}, es), nil
}

// Edges returns snapshots of all edges, ordered by endpoints and kind.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, 0, len(g.edges))
	for key, es := range g.edges {
		out = append(out, snapshotEdge(key, es))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		if out[i].To != out[j].To {
			return out[i].To < out[j].To
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// NodeCount reports the number of nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount reports the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// DocumentCount reports the number of ingested documents.
func (g *Graph) DocumentCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.docs)
}

// Documents returns the ingested document ids in sorted order.
func (g *Graph) Documents() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.docs))
	for id := range g.docs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RelatedDocuments ranks other documents by the number of nodes they share
// with docID, most shared first, ties broken by id.
func (g *Graph) RelatedDocuments(docID string, limit int) ([]DocumentMatch, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidInput, limit)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	contrib, ok := g.docs[docID]
	if !ok {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, docID)
	}
	counts := make(map[string]int)
	for id := range contrib.nodes {
		ns, ok := g.nodes[id]
		if !ok {
			continue
		}
		for other := range ns.docs {
			if other != docID {
				counts[other]++
			}
		}
	}
	matches := make([]DocumentMatch, 0, len(counts))
	for id, n := range counts {
		matches = append(matches, DocumentMatch{ID: id, SharedEntities: n})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].SharedEntities != matches[j].SharedEntities {
			return matches[i].SharedEntities > matches[j].SharedEntities
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Stats returns a summary of the current graph state. Density relates the
// number of connected node pairs to the number of possible pairs.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st := Stats{
		Nodes:       len(g.nodes),
		Edges:       len(g.edges),
		Documents:   len(g.docs),
		Communities: len(g.communities),
		NodesByType: make(map[string]int),
	}
	for id := range g.nodes {
		st.NodesByType[nodeType(id)]++
	}
	if len(g.nodes) > 1 {
		pairs := make(map[[2]string]struct{}, len(g.edges))
		for key := range g.edges {
			pairs[[2]string{key.a, key.b}] = struct{}{}
		}
		n := float64(len(g.nodes))
		st.Density = float64(len(pairs)) / (n * (n - 1) / 2)
	}
	return st
}

func snapshotNode(id string, ns *nodeState) Node {
	n := Node{ID: id, Type: ns.typ}
	docs := make([]string, 0, len(ns.docs))
	for docID, stat := range ns.docs {
		docs = append(docs, docID)
		n.Mentions += stat.count
		if stat.confidence > n.Confidence {
			n.Confidence = stat.confidence
		}
		if n.Label == "" || stat.label < n.Label {
			n.Label = stat.label
		}
	}
	sort.Strings(docs)
	n.Documents = docs
	return n
}

func snapshotEdge(key edgeKey, es *edgeState) Edge {
	docs := make([]string, 0, len(es.docs))
	for docID := range es.docs {
		docs = append(docs, docID)
	}
	sort.Strings(docs)
	return Edge{
		From:      key.a,
		To:        key.b,
		Kind:      key.kind,
		Weight:    float64(len(es.docs)),
		Documents: docs,
	}
}
