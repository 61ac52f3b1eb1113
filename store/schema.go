package store

import "fmt"

// schemaSQL returns the DDL for all tables. projectionDim controls the
// vec0 virtual table dimension and must match vector.Signature.Project.
func schemaSQL(projectionDim int) string {
	return fmt.Sprintf(`
-- Document registry. Content is kept so graph and index state can be
-- rebuilt from the database on startup.
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY,
    doc_id TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL,
    format TEXT NOT NULL DEFAULT 'txt',
    domain TEXT NOT NULL DEFAULT '',
    object_type TEXT NOT NULL DEFAULT '',
    classification TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Dense projections of document signatures via sqlite-vec
CREATE VIRTUAL TABLE IF NOT EXISTS vec_documents USING vec0(
    document_rowid INTEGER PRIMARY KEY,
    projection float[%d]
);

-- Full-text search via FTS5
CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
    title,
    content,
    content='documents',
    content_rowid='id',
    tokenize='unicode61'
);

-- FTS triggers to keep the index in sync
CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
    INSERT INTO documents_fts(rowid, title, content) VALUES (new.id, new.title, new.content);
END;
CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
    INSERT INTO documents_fts(documents_fts, rowid, title, content) VALUES ('delete', old.id, old.title, old.content);
END;
CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE ON documents BEGIN
    INSERT INTO documents_fts(documents_fts, rowid, title, content) VALUES ('delete', old.id, old.title, old.content);
    INSERT INTO documents_fts(rowid, title, content) VALUES (new.id, new.title, new.content);
END;

-- Latest metadata suggestion per document
CREATE TABLE IF NOT EXISTS suggestions (
    id INTEGER PRIMARY KEY,
    document_rowid INTEGER NOT NULL UNIQUE REFERENCES documents(id) ON DELETE CASCADE,
    payload JSON NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Compliance assessment audit log
CREATE TABLE IF NOT EXISTS assessments (
    id INTEGER PRIMARY KEY,
    assessment_id TEXT NOT NULL,
    doc_id TEXT NOT NULL,
    classification TEXT NOT NULL,
    privacy TEXT NOT NULL,
    woo_relevant INTEGER NOT NULL,
    woo_score REAL NOT NULL,
    disclosure TEXT NOT NULL,
    retention_years INTEGER NOT NULL,
    permanent INTEGER NOT NULL,
    score REAL NOT NULL,
    payload JSON NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);
CREATE INDEX IF NOT EXISTS idx_documents_domain ON documents(domain);
CREATE INDEX IF NOT EXISTS idx_assessments_doc ON assessments(doc_id);
`, projectionDim)
}
