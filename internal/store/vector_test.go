package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVectorStore(t *testing.T, dims int) *HNSWVectorStore {
	t.Helper()
	s, err := NewHNSWVectorStore(VectorStoreConfig{Dimensions: dims})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestHNSWVectorStore_RequiresDimensions(t *testing.T) {
	_, err := NewHNSWVectorStore(VectorStoreConfig{})
	assert.Error(t, err)
}

func TestHNSWVectorStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 3)

	err := s.Add(ctx,
		[]string{"skill", "equip", "dungeon"},
		[][]float32{
			{1, 0, 0},
			{0, 1, 0},
			{0, 0, 1},
		})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Count())

	results, err := s.Search(ctx, []float32{0.9, 0.1, 0}, 1, 3, 1.0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "skill", results[0].ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.05)
}

func TestHNSWVectorStore_EmptyIndexReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 4)

	results, err := s.Search(ctx, []float32{1, 0, 0, 0}, 5, 15, 0.8)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWVectorStore_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 3)

	err := s.Add(ctx, []string{"a"}, [][]float32{{1, 0}})
	var dimErr ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 3, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Got)

	_, err = s.Search(ctx, []float32{1, 0}, 1, 3, 1.0)
	assert.ErrorAs(t, err, &dimErr)
}

func TestHNSWVectorStore_ReAddReplacesVector(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 3)

	require.NoError(t, s.Add(ctx, []string{"doc"}, [][]float32{{1, 0, 0}}))
	require.NoError(t, s.Add(ctx, []string{"doc"}, [][]float32{{0, 1, 0}}))
	assert.Equal(t, 1, s.Count())

	results, err := s.Search(ctx, []float32{0, 1, 0}, 1, 5, 1.0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc", results[0].ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.01)
}

func TestHNSWVectorStore_MMRPrefersDiversityOverNearDuplicates(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 3)

	// Two near-duplicates close to the query plus one distinct vector.
	err := s.Add(ctx,
		[]string{"dup_a", "dup_b", "distinct"},
		[][]float32{
			{1, 0, 0},
			{0.999, 0.04, 0},
			{0.5, 0, 0.86},
		})
	require.NoError(t, err)

	// Pure relevance keeps both duplicates.
	relevanceOnly, err := s.Search(ctx, []float32{1, 0, 0}, 2, 3, 1.0)
	require.NoError(t, err)
	require.Len(t, relevanceOnly, 2)
	assert.ElementsMatch(t,
		[]string{"dup_a", "dup_b"},
		[]string{relevanceOnly[0].ID, relevanceOnly[1].ID})

	// Diversity-weighted selection swaps the second duplicate out.
	diverse, err := s.Search(ctx, []float32{1, 0, 0}, 2, 3, 0.5)
	require.NoError(t, err)
	require.Len(t, diverse, 2)
	assert.Equal(t, "dup_a", diverse[0].ID)
	assert.Equal(t, "distinct", diverse[1].ID)
}

func TestHNSWVectorStore_FetchKFloorsAtK(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 2)

	require.NoError(t, s.Add(ctx,
		[]string{"a", "b", "c"},
		[][]float32{{1, 0}, {0, 1}, {0.7, 0.7}}))

	results, err := s.Search(ctx, []float32{1, 0}, 3, 1, 0.8)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestHNSWVectorStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 3)

	require.NoError(t, s.Add(ctx,
		[]string{"one", "two"},
		[][]float32{{1, 0, 0}, {0, 1, 0}}))

	path := filepath.Join(t.TempDir(), "vectors.gob")
	require.NoError(t, s.Save(path))

	loaded, err := LoadHNSWVectorStore(path)
	require.NoError(t, err)
	defer func() { _ = loaded.Close() }()

	assert.Equal(t, 2, loaded.Count())
	results, err := loaded.Search(ctx, []float32{0, 1, 0}, 1, 2, 1.0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "two", results[0].ID)
}

func TestLoadHNSWVectorStore_MissingFile(t *testing.T) {
	_, err := LoadHNSWVectorStore(filepath.Join(t.TempDir(), "nope.gob"))
	assert.Error(t, err)
}

func TestNormalizeVectorInPlace_ZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	normalizeVectorInPlace(v)
	assert.Equal(t, []float32{0, 0, 0}, v)
}
