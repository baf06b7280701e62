// Package store provides the persistence layer for the knowledge base:
// a SQLite document store (corpus of preprocessed guide chunks), a Bleve
// BM25 index for lexical retrieval, and an HNSW vector index for dense
// retrieval with diversity-aware selection.
package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Metadata holds the recognized per-document metadata keys. All fields are
// optional; numeric-looking fields stay strings because they come from
// scraped pages and may be malformed. Scoring code parses them leniently.
type Metadata struct {
	Title        string `json:"title,omitempty"`
	URL          string `json:"url,omitempty"`
	Source       string `json:"source,omitempty"`
	Date         string `json:"date,omitempty"`
	Timestamp    string `json:"timestamp,omitempty"`
	Views        string `json:"views,omitempty"`
	Likes        string `json:"likes,omitempty"`
	QualityScore string `json:"quality_score,omitempty"`
	ClassName    string `json:"class_name,omitempty"`
}

// UnmarshalJSON accepts the numeric fields as either JSON strings or JSON
// numbers. The preprocessing pipeline emits quality_score as a float and
// views/likes as integers, while scraped sources may carry them as strings;
// both forms must load. An unusable value degrades that field alone, never
// the document.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	type alias Metadata
	aux := struct {
		*alias
		Views        json.RawMessage `json:"views"`
		Likes        json.RawMessage `json:"likes"`
		QualityScore json.RawMessage `json:"quality_score"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.Views = scalarString(aux.Views)
	m.Likes = scalarString(aux.Likes)
	m.QualityScore = scalarString(aux.QualityScore)
	return nil
}

// scalarString renders a raw JSON scalar as its string form. Strings pass
// through, numbers keep their literal text, anything else becomes empty.
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// Document is a retrievable unit of knowledge. Documents are created by the
// preprocessing pipeline, read-only within retrieval, and identified by a
// stable ID unique across the corpus.
type Document struct {
	ID       string   `json:"doc_id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// LexicalResult is a single BM25 hit.
type LexicalResult struct {
	DocID string
	Score float64
}

// VectorResult is a single dense similarity hit.
type VectorResult struct {
	ID    string
	Score float32 // similarity in [0, 1], higher is better
}

// DocumentStore persists the corpus and serves enrichment lookups.
type DocumentStore interface {
	// Save upserts documents by ID.
	Save(ctx context.Context, docs []*Document) error

	// Get fetches documents by ID. Unknown IDs are skipped, not errors.
	Get(ctx context.Context, ids []string) ([]*Document, error)

	// All returns the full corpus. Used once per lexical index build.
	All(ctx context.Context) ([]*Document, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// Close releases the store.
	Close() error
}

// ErrDimensionMismatch reports a vector whose length does not match the
// configured index dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: index has %d dimensions, got %d", e.Expected, e.Got)
}
