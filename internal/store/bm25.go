package store

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
)

// GuideAnalyzerName is the analyzer used for guide content. The unicode
// tokenizer handles mixed Korean/English guide text; lowercasing folds the
// English side (class aliases, item names).
const GuideAnalyzerName = "guide_analyzer"

// indexBatchSize bounds memory during corpus indexing.
const indexBatchSize = 500

// BleveLexicalIndex wraps Bleve v2 for BM25 keyword search over the corpus.
//
// Documents are indexed on an enriched surface, not the raw chunk text:
// the title and detected class name are folded in so exact entity terms
// (class/job names) score the way this domain needs them to. Bare chunk
// text under-weights them.
type BleveLexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string // empty for in-memory
	closed bool
}

// bleveDocument is the indexed document shape.
type bleveDocument struct {
	Content string `json:"content"`
}

func buildIndexMapping() (mapping.IndexMapping, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(GuideAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("register analyzer: %w", err)
	}

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = GuideAnalyzerName

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("content", contentField)

	im.DefaultMapping = docMapping
	im.DefaultAnalyzer = GuideAnalyzerName
	return im, nil
}

// NewBleveLexicalIndex opens the index at path, creating it if absent.
func NewBleveLexicalIndex(path string) (*BleveLexicalIndex, error) {
	if _, err := os.Stat(path); err == nil {
		idx, err := bleve.Open(path)
		if err == nil {
			return &BleveLexicalIndex{index: idx, path: path}, nil
		}
		// Open failure means corruption; rebuild from scratch rather
		// than surfacing the error to every caller.
		_ = os.RemoveAll(path)
	}

	im, err := buildIndexMapping()
	if err != nil {
		return nil, err
	}
	idx, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("create lexical index: %w", err)
	}
	return &BleveLexicalIndex{index: idx, path: path}, nil
}

// NewMemLexicalIndex creates an in-memory index (tests, ephemeral rebuilds).
func NewMemLexicalIndex() (*BleveLexicalIndex, error) {
	im, err := buildIndexMapping()
	if err != nil {
		return nil, err
	}
	idx, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("create in-memory lexical index: %w", err)
	}
	return &BleveLexicalIndex{index: idx}, nil
}

// EnrichSurface builds the text surface actually indexed for a document:
// a labeled title line, the chunk content, and the class name appended as a
// labeled line when detected.
func EnrichSurface(d *Document) string {
	var b strings.Builder
	if d.Metadata.Title != "" {
		b.WriteString("제목: ")
		b.WriteString(d.Metadata.Title)
		b.WriteString("\n")
	}
	b.WriteString(d.Content)
	if d.Metadata.ClassName != "" {
		b.WriteString("\n직업: ")
		b.WriteString(d.Metadata.ClassName)
	}
	return b.String()
}

// BuildFromCorpus indexes the full corpus in batches, replacing any
// previously indexed content for the same IDs.
func (b *BleveLexicalIndex) BuildFromCorpus(ctx context.Context, docs []*Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := b.index.NewBatch()
	count := 0
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := batch.Index(d.ID, bleveDocument{Content: EnrichSurface(d)}); err != nil {
			return fmt.Errorf("index document %s: %w", d.ID, err)
		}
		count++
		if count%indexBatchSize == 0 {
			if err := b.index.Batch(batch); err != nil {
				return fmt.Errorf("flush index batch: %w", err)
			}
			batch = b.index.NewBatch()
		}
	}
	if batch.Size() > 0 {
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("flush final index batch: %w", err)
		}
	}
	return nil
}

// Search runs a BM25 match query over the enriched content field.
// An empty query returns an empty result set.
func (b *BleveLexicalIndex) Search(ctx context.Context, queryStr string, limit int) ([]*LexicalResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}
	if strings.TrimSpace(queryStr) == "" || limit <= 0 {
		return []*LexicalResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("content")

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = limit

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	results := make([]*LexicalResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &LexicalResult{
			DocID: hit.ID,
			Score: hit.Score,
		})
	}
	return results, nil
}

// DocCount returns the number of indexed documents.
func (b *BleveLexicalIndex) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, fmt.Errorf("lexical index is closed")
	}
	return b.index.DocCount()
}

// Close releases the index.
func (b *BleveLexicalIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
