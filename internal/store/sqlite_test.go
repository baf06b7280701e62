package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDocumentStore(t *testing.T) *SQLiteDocumentStore {
	t.Helper()
	s, err := NewSQLiteDocumentStore(filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testDocs() []*Document {
	return []*Document{
		{
			ID:      "guide_001",
			Content: "버서커 스킬트리 정리",
			Metadata: Metadata{
				Title:     "버서커 가이드",
				ClassName: "버서커",
				Views:     "1200",
			},
		},
		{
			ID:      "guide_002",
			Content: "에픽 장비 세팅",
			Metadata: Metadata{
				Title:        "장비 가이드",
				QualityScore: "0.8",
			},
		},
	}
}

func TestSQLiteDocumentStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestDocumentStore(t)

	require.NoError(t, s.Save(ctx, testDocs()))

	docs, err := s.Get(ctx, []string{"guide_001", "guide_002"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "버서커 스킬트리 정리", docs[0].Content)
	assert.Equal(t, "버서커", docs[0].Metadata.ClassName)
	assert.Equal(t, "0.8", docs[1].Metadata.QualityScore)
}

func TestSQLiteDocumentStore_GetPreservesRequestOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestDocumentStore(t)
	require.NoError(t, s.Save(ctx, testDocs()))

	docs, err := s.Get(ctx, []string{"guide_002", "guide_001"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "guide_002", docs[0].ID)
	assert.Equal(t, "guide_001", docs[1].ID)
}

func TestSQLiteDocumentStore_GetSkipsUnknownIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestDocumentStore(t)
	require.NoError(t, s.Save(ctx, testDocs()))

	docs, err := s.Get(ctx, []string{"guide_001", "missing", "guide_002"})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestSQLiteDocumentStore_SaveUpserts(t *testing.T) {
	ctx := context.Background()
	s := newTestDocumentStore(t)
	require.NoError(t, s.Save(ctx, testDocs()))

	updated := &Document{ID: "guide_001", Content: "개편 후 스킬트리"}
	require.NoError(t, s.Save(ctx, []*Document{updated}))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	docs, err := s.Get(ctx, []string{"guide_001"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "개편 후 스킬트리", docs[0].Content)
}

func TestSQLiteDocumentStore_All(t *testing.T) {
	ctx := context.Background()
	s := newTestDocumentStore(t)
	require.NoError(t, s.Save(ctx, testDocs()))

	docs, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "guide_001", docs[0].ID)
	assert.Equal(t, "guide_002", docs[1].ID)
}

func TestSQLiteDocumentStore_EmptyStore(t *testing.T) {
	ctx := context.Background()
	s := newTestDocumentStore(t)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	docs, err := s.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestSQLiteDocumentStore_ReopenPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "corpus.db")

	s, err := NewSQLiteDocumentStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, testDocs()))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteDocumentStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
