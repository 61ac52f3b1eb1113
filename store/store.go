package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jbekkers/kennisgraaf/vector"
)

func init() {
	sqlite_vec.Auto()
}

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Document represents a row in the documents table. Content is persisted
// so the in-memory graph and index can be rebuilt on startup; it is not
// included in JSON payloads.
type Document struct {
	RowID          int64  `json:"-"`
	ID             string `json:"id"`
	Title          string `json:"title"`
	Format         string `json:"format"`
	Domain         string `json:"domain,omitempty"`
	ObjectType     string `json:"object_type,omitempty"`
	Classification string `json:"classification,omitempty"`
	Content        string `json:"-"`
	ContentHash    string `json:"content_hash"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// AssessmentRecord represents a row in the assessments audit log.
type AssessmentRecord struct {
	AssessmentID   string          `json:"assessment_id"`
	DocID          string          `json:"doc_id"`
	Classification string          `json:"classification"`
	Privacy        string          `json:"privacy"`
	WooRelevant    bool            `json:"woo_relevant"`
	WooScore       float64         `json:"woo_score"`
	Disclosure     string          `json:"disclosure"`
	RetentionYears int             `json:"retention_years"`
	Permanent      bool            `json:"permanent"`
	Score          float64         `json:"score"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedAt      string          `json:"created_at"`
}

// SearchResult holds a document hit with its retrieval score.
type SearchResult struct {
	DocID   string   `json:"doc_id"`
	Title   string   `json:"title"`
	Domain  string   `json:"domain,omitempty"`
	Score   float64  `json:"score"`
	Methods []string `json:"methods,omitempty"`
}

// DBStats holds row counts per table.
type DBStats struct {
	Documents   int `json:"documents"`
	Projections int `json:"projections"`
	Suggestions int `json:"suggestions"`
	Assessments int `json:"assessments"`
}

// Store wraps the SQLite database for all kennisgraaf persistence.
type Store struct {
	db            *sql.DB
	projectionDim int
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including sqlite-vec and FTS5 virtual tables.
func New(dbPath string, projectionDim int) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Create schema
	if _, err := db.Exec(schemaSQL(projectionDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, projectionDim: projectionDim}

	// Run pending migrations.
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ProjectionDim returns the configured projection dimension.
func (s *Store) ProjectionDim() int {
	return s.projectionDim
}

// --- Document operations ---

// UpsertDocument inserts or updates a document record keyed by its
// external document ID. The content hash is computed here. Returns the
// internal row ID.
func (s *Store) UpsertDocument(ctx context.Context, doc Document) (int64, error) {
	hash := sha256.Sum256([]byte(doc.Content))
	contentHash := hex.EncodeToString(hash[:])

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (doc_id, title, format, domain, object_type, classification, content, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			title = excluded.title,
			format = excluded.format,
			domain = excluded.domain,
			object_type = excluded.object_type,
			classification = excluded.classification,
			content = excluded.content,
			content_hash = excluded.content_hash,
			updated_at = CURRENT_TIMESTAMP
	`, doc.ID, doc.Title, doc.Format, doc.Domain, doc.ObjectType, doc.Classification, doc.Content, contentHash)
	if err != nil {
		return 0, err
	}

	// LastInsertId is unreliable when the UPSERT takes the UPDATE branch,
	// so resolve the row ID by key.
	var id int64
	row := s.db.QueryRowContext(ctx, "SELECT id FROM documents WHERE doc_id = ?", doc.ID)
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// GetDocument retrieves a document by its external ID.
func (s *Store) GetDocument(ctx context.Context, docID string) (*Document, error) {
	doc := &Document{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, doc_id, title, format, domain, object_type, classification, content, content_hash, created_at, updated_at
		FROM documents WHERE doc_id = ?
	`, docID).Scan(&doc.RowID, &doc.ID, &doc.Title, &doc.Format,
		&doc.Domain, &doc.ObjectType, &doc.Classification,
		&doc.Content, &doc.ContentHash, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, docID)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments returns all documents ordered by creation time, newest
// first. Content is included so callers can replay documents on startup.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc_id, title, format, domain, object_type, classification, content, content_hash, created_at, updated_at
		FROM documents ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.RowID, &d.ID, &d.Title, &d.Format,
			&d.Domain, &d.ObjectType, &d.Classification,
			&d.Content, &d.ContentHash, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document and all derived rows: its projection,
// its suggestion (via foreign key cascade), its FTS entry (via trigger)
// and its assessment history.
func (s *Store) DeleteDocument(ctx context.Context, docID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var rowID int64
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM documents WHERE doc_id = ?", docID).Scan(&rowID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: document %s", ErrNotFound, docID)
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM vec_documents WHERE document_rowid = ?", rowID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM assessments WHERE doc_id = ?", docID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM documents WHERE id = ?", rowID); err != nil {
			return err
		}

		return nil
	})
}

// --- Suggestion operations ---

// SaveSuggestion stores the latest suggestion payload for a document,
// replacing any previous one.
func (s *Store) SaveSuggestion(ctx context.Context, documentRowID int64, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suggestions (document_rowid, payload) VALUES (?, ?)
		ON CONFLICT(document_rowid) DO UPDATE SET
			payload = excluded.payload,
			created_at = CURRENT_TIMESTAMP
	`, documentRowID, string(payload))
	return err
}

// GetSuggestion returns the stored suggestion payload for a document.
func (s *Store) GetSuggestion(ctx context.Context, docID string) (json.RawMessage, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT su.payload
		FROM suggestions su
		JOIN documents d ON d.id = su.document_rowid
		WHERE d.doc_id = ?
	`, docID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: suggestion for document %s", ErrNotFound, docID)
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(payload), nil
}

// --- Assessment log ---

// LogAssessment appends a compliance assessment to the audit log.
func (s *Store) LogAssessment(ctx context.Context, rec AssessmentRecord) error {
	payload := rec.Payload
	if payload == nil {
		payload = json.RawMessage("{}")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assessments (assessment_id, doc_id, classification, privacy, woo_relevant, woo_score,
			disclosure, retention_years, permanent, score, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.AssessmentID, rec.DocID, rec.Classification, rec.Privacy, rec.WooRelevant, rec.WooScore,
		rec.Disclosure, rec.RetentionYears, rec.Permanent, rec.Score, string(payload))
	return err
}

// ListAssessments returns assessment records, newest first. An empty
// docID returns records for all documents.
func (s *Store) ListAssessments(ctx context.Context, docID string, limit int) ([]AssessmentRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT assessment_id, doc_id, classification, privacy, woo_relevant, woo_score,
			disclosure, retention_years, permanent, score, payload, created_at
		FROM assessments`
	args := []any{}
	if docID != "" {
		query += " WHERE doc_id = ?"
		args = append(args, docID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []AssessmentRecord
	for rows.Next() {
		var r AssessmentRecord
		var payload []byte
		if err := rows.Scan(&r.AssessmentID, &r.DocID, &r.Classification, &r.Privacy,
			&r.WooRelevant, &r.WooScore, &r.Disclosure, &r.RetentionYears,
			&r.Permanent, &r.Score, &payload, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Payload = json.RawMessage(payload)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// --- Search operations ---

// InsertProjection stores the dense projection of a document signature.
func (s *Store) InsertProjection(ctx context.Context, documentRowID int64, projection []float32) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO vec_documents (document_rowid, projection) VALUES (?, ?)",
		documentRowID, serializeFloat32(projection))
	return err
}

// SimilarByProjection performs a KNN search over document projections.
func (s *Store) SimilarByProjection(ctx context.Context, projection []float32, k int) ([]SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.doc_id, d.title, d.domain, v.distance
		FROM vec_documents v
		JOIN documents d ON d.id = v.document_rowid
		WHERE v.projection MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(projection), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var distance float64
		if err := rows.Scan(&r.DocID, &r.Title, &r.Domain, &distance); err != nil {
			return nil, err
		}
		// Convert distance to similarity score (1 - distance for cosine)
		r.Score = 1.0 - distance
		results = append(results, r)
	}
	return results, rows.Err()
}

// SearchText performs a full-text search using FTS5 BM25 ranking. The
// match argument uses FTS5 query syntax.
func (s *Store) SearchText(ctx context.Context, match string, limit int) ([]SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.doc_id, d.title, d.domain, f.rank
		FROM documents_fts f
		JOIN documents d ON d.id = f.rowid
		WHERE documents_fts MATCH ?
		ORDER BY f.rank
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var rank float64
		if err := rows.Scan(&r.DocID, &r.Title, &r.Domain, &rank); err != nil {
			return nil, err
		}
		// FTS5 rank is negative (lower = better), convert to positive score
		r.Score = -rank
		results = append(results, r)
	}
	return results, rows.Err()
}

// SearchDocuments runs a hybrid search over the stored corpus, fusing a
// projection KNN pass and a full-text pass with reciprocal rank fusion.
func (s *Store) SearchDocuments(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	sig := vector.NewSignature(query)
	terms := sig.Terms()
	if len(terms) == 0 {
		return nil, nil
	}

	// Overfetch per leg so fusion has candidates beyond the cutoff.
	candidates := limit * 3

	vecResults, err := s.SimilarByProjection(ctx, sig.Project(s.projectionDim), candidates)
	if err != nil {
		return nil, fmt.Errorf("projection search: %w", err)
	}

	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}
	ftsResults, err := s.SearchText(ctx, strings.Join(quoted, " OR "), candidates)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}

	legs := []fusionLeg{
		{method: "projection", weight: 1.0, results: vecResults},
		{method: "fts", weight: 1.0, results: ftsResults},
	}
	return fuseRRF(legs, limit), nil
}

// rrfK dampens the influence of rank position in reciprocal rank fusion.
const rrfK = 60

type fusionLeg struct {
	method  string
	weight  float64
	results []SearchResult
}

// fuseRRF merges ranked result lists using weighted reciprocal rank
// fusion. Ties are broken by document ID so output order is stable.
func fuseRRF(legs []fusionLeg, limit int) []SearchResult {
	fused := make(map[string]*SearchResult)
	for _, leg := range legs {
		for rank, r := range leg.results {
			f, ok := fused[r.DocID]
			if !ok {
				f = &SearchResult{DocID: r.DocID, Title: r.Title, Domain: r.Domain}
				fused[r.DocID] = f
			}
			f.Score += leg.weight / float64(rrfK+rank+1)
			f.Methods = append(f.Methods, leg.method)
		}
	}

	results := make([]SearchResult, 0, len(fused))
	for _, f := range fused {
		results = append(results, *f)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// --- Stats ---

// Stats returns row counts for the main tables.
func (s *Store) Stats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM documents", &stats.Documents},
		{"SELECT COUNT(*) FROM vec_documents", &stats.Projections},
		{"SELECT COUNT(*) FROM suggestions", &stats.Suggestions},
		{"SELECT COUNT(*) FROM assessments", &stats.Assessments},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
