package search

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questline/guiderag/internal/cache"
	"github.com/questline/guiderag/internal/embed"
	"github.com/questline/guiderag/internal/query"
	"github.com/questline/guiderag/internal/store"
	"github.com/questline/guiderag/internal/telemetry"
)

// stubWebSearcher returns fixed docs or a fixed error.
type stubWebSearcher struct {
	docs  []*store.Document
	err   error
	calls int
}

func (s *stubWebSearcher) Search(_ context.Context, _ string, _ *query.CharacterContext) ([]*store.Document, error) {
	s.calls++
	return s.docs, s.err
}

// failingReranker always errors, simulating a dead cross-encoder server.
type failingReranker struct{}

func (f *failingReranker) Rerank(context.Context, string, []string, int) ([]RerankResult, error) {
	return nil, errors.New("reranker unreachable")
}
func (f *failingReranker) Available(context.Context) bool { return false }
func (f *failingReranker) Close() error                   { return nil }

// testCorpus is one 엘븐나이트 guide plus nine unrelated documents.
func testCorpus() []*store.Document {
	docs := []*store.Document{
		{
			ID:      "elven_guide",
			Content: "엘븐나이트 스킬트리 추천과 운용법",
			Metadata: store.Metadata{
				Title:        "엘븐나이트 가이드",
				ClassName:    "엘븐나이트",
				QualityScore: "8.5",
			},
		},
	}
	fillers := []string{
		"던전 입장 재료 정리", "경매장 시세 보는 법", "길드 버프 설명",
		"결투장 랭크 보상", "이벤트 기간 안내", "칭호 합성 방법",
		"크리쳐 성장 재료", "아바타 옵션 정리", "모험단 레벨 보상",
	}
	for i, content := range fillers {
		docs = append(docs, &store.Document{
			ID:       "filler_" + string(rune('a'+i)),
			Content:  content,
			Metadata: store.Metadata{QualityScore: "1.0"},
		})
	}
	return docs
}

type pipelineOption func(*OrchestratorDeps, *Config)

func withWeb(w WebSearcher) pipelineOption {
	return func(d *OrchestratorDeps, c *Config) {
		d.Web = w
		c.WebSearchEnabled = true
	}
}

func withResultCache(rc cache.ResultCache) pipelineOption {
	return func(d *OrchestratorDeps, _ *Config) { d.Results = rc }
}

func withReranker(r Reranker) pipelineOption {
	return func(d *OrchestratorDeps, _ *Config) { d.Reranker = r }
}

func withMetrics(m *telemetry.SearchMetrics) pipelineOption {
	return func(d *OrchestratorDeps, _ *Config) { d.Metrics = m }
}

// newTestOrchestrator builds a full pipeline over real components: static
// embedder, in-memory bleve index, HNSW store, SQLite document store.
func newTestOrchestrator(t *testing.T, docs []*store.Document, opts ...pipelineOption) *Orchestrator {
	t.Helper()
	ctx := context.Background()

	docStore, err := store.NewSQLiteDocumentStore(filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = docStore.Close() })
	require.NoError(t, docStore.Save(ctx, docs))

	lexical, err := store.NewMemLexicalIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = lexical.Close() })
	require.NoError(t, lexical.BuildFromCorpus(ctx, docs))

	embedder := embed.NewStaticEmbedder()
	t.Cleanup(func() { _ = embedder.Close() })

	vectors, err := store.NewHNSWVectorStore(store.VectorStoreConfig{Dimensions: embedder.Dimensions()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	ids := make([]string, len(docs))
	contents := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
		contents[i] = d.Content
	}
	vecs, err := embedder.EmbedBatch(ctx, contents)
	require.NoError(t, err)
	require.NoError(t, vectors.Add(ctx, ids, vecs))

	cfg := DefaultConfig()
	deps := OrchestratorDeps{
		Embedder: embedder,
		Lexical:  lexical,
		Dense:    vectors,
		Docs:     docStore,
	}
	for _, opt := range opts {
		opt(&deps, &cfg)
	}

	return NewOrchestrator(cfg, deps)
}

func TestOrchestrator_ClassMatchRanksFirst(t *testing.T) {
	o := newTestOrchestrator(t, testCorpus())

	result, err := o.Search(context.Background(), "엘븐나이트 스킬트리", nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.InternalDocs)
	assert.Equal(t, "elven_guide", result.InternalDocs[0].ID)
	assert.Contains(t, result.InternalContext, "[내부 문서 1]")
	assert.False(t, result.UsedWebSearch)
}

func TestOrchestrator_ResultCacheDeterminism(t *testing.T) {
	mgr, err := cache.NewManager(t.TempDir(), time.Hour, 2*time.Hour)
	require.NoError(t, err)

	o := newTestOrchestrator(t, testCorpus(), withResultCache(mgr))
	ctx := context.Background()
	cc := &query.CharacterContext{Job: "엘븐나이트", Fame: 41000}

	first, err := o.Search(ctx, "스킬트리 알려줘", cc)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := o.Search(ctx, "스킬트리 알려줘", cc)
	require.NoError(t, err)
	assert.True(t, second.Cached)

	assert.Equal(t, first.EnhancedQuery, second.EnhancedQuery)
	assert.Equal(t, first.InternalContext, second.InternalContext)
	require.Len(t, second.InternalDocs, len(first.InternalDocs))
	for i := range first.InternalDocs {
		assert.Equal(t, first.InternalDocs[i].ID, second.InternalDocs[i].ID)
	}
}

func TestOrchestrator_CacheHitReportsOwnTotal(t *testing.T) {
	mgr, err := cache.NewManager(t.TempDir(), time.Hour, 2*time.Hour)
	require.NoError(t, err)

	o := newTestOrchestrator(t, testCorpus(), withResultCache(mgr))
	ctx := context.Background()

	first, err := o.Search(ctx, "스킬트리 알려줘", nil)
	require.NoError(t, err)
	require.False(t, first.Cached)

	second, err := o.Search(ctx, "스킬트리 알려줘", nil)
	require.NoError(t, err)
	require.True(t, second.Cached)

	// Branch timings stay as stored, but total_ms measures this lookup
	// rather than replaying the cold call's wall time.
	assert.Equal(t, first.TimingsMs["internal_ms"], second.TimingsMs["internal_ms"])
	assert.NotEqual(t, first.TimingsMs["total_ms"], second.TimingsMs["total_ms"])
	assert.GreaterOrEqual(t, second.TimingsMs["total_ms"], 0.0)
}

func TestOrchestrator_DifferentContextDoesNotShareCache(t *testing.T) {
	mgr, err := cache.NewManager(t.TempDir(), time.Hour, 2*time.Hour)
	require.NoError(t, err)

	o := newTestOrchestrator(t, testCorpus(), withResultCache(mgr))
	ctx := context.Background()

	first, err := o.Search(ctx, "스킬트리", &query.CharacterContext{Job: "엘븐나이트"})
	require.NoError(t, err)
	assert.False(t, first.Cached)

	other, err := o.Search(ctx, "스킬트리", &query.CharacterContext{Job: "버서커"})
	require.NoError(t, err)
	assert.False(t, other.Cached)
}

func TestOrchestrator_WebBranchFailureDegrades(t *testing.T) {
	web := &stubWebSearcher{err: errors.New("api quota exceeded")}
	o := newTestOrchestrator(t, testCorpus(), withWeb(web))

	result, err := o.Search(context.Background(), "엘븐나이트 스킬트리", nil)
	require.NoError(t, err)
	assert.False(t, result.UsedWebSearch)
	assert.Empty(t, result.WebDocs)
	assert.NotEmpty(t, result.InternalDocs)
	assert.Equal(t, 1, web.calls)
	assert.Equal(t, query.NoResults, result.WebContext)
}

func TestOrchestrator_WebBranchMerges(t *testing.T) {
	web := &stubWebSearcher{docs: []*store.Document{
		{
			ID:      "web_main",
			Content: "이번 패치에서 엘븐나이트 상향",
			Metadata: store.Metadata{
				Source: "web_search_main",
			},
		},
	}}
	o := newTestOrchestrator(t, testCorpus(), withWeb(web))

	result, err := o.Search(context.Background(), "엘븐나이트 최신 패치", nil)
	require.NoError(t, err)
	assert.True(t, result.UsedWebSearch)
	require.Len(t, result.WebDocs, 1)
	assert.Contains(t, result.WebContext, "[웹 문서 1]")
	assert.Contains(t, result.TimingsMs, "web_ms")

	// Recency keyword switched the fusion weights.
	assert.Greater(t, result.Weights.Dense, result.Weights.Lexical)
}

func TestOrchestrator_RerankerFailureKeepsFusedOrder(t *testing.T) {
	o := newTestOrchestrator(t, testCorpus(), withReranker(&failingReranker{}))

	result, err := o.Search(context.Background(), "엘븐나이트 스킬트리", nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.InternalDocs)
	assert.Equal(t, "elven_guide", result.InternalDocs[0].ID)
}

func TestOrchestrator_NoMatchesStillReturnsResult(t *testing.T) {
	o := newTestOrchestrator(t, testCorpus())

	result, err := o.Search(context.Background(), "zzzzqqqq", nil)
	require.NoError(t, err)
	assert.NotNil(t, result.InternalDocs)
	if len(result.InternalDocs) == 0 {
		assert.Equal(t, query.NoResults, result.InternalContext)
	}
}

func TestOrchestrator_RecordsTimings(t *testing.T) {
	o := newTestOrchestrator(t, testCorpus())

	result, err := o.Search(context.Background(), "던전 입장 재료", nil)
	require.NoError(t, err)
	assert.Contains(t, result.TimingsMs, "internal_ms")
	assert.Contains(t, result.TimingsMs, "total_ms")
	assert.GreaterOrEqual(t, result.TimingsMs["total_ms"], result.TimingsMs["internal_ms"])
}

func TestOrchestrator_MetricsRecorded(t *testing.T) {
	metrics := telemetry.NewSearchMetrics(telemetry.MetricsConfig{})
	mgr, err := cache.NewManager(t.TempDir(), time.Hour, 2*time.Hour)
	require.NoError(t, err)

	o := newTestOrchestrator(t, testCorpus(), withMetrics(metrics), withResultCache(mgr))
	ctx := context.Background()

	_, err = o.Search(ctx, "엘븐나이트 스킬트리", nil)
	require.NoError(t, err)
	_, err = o.Search(ctx, "엘븐나이트 스킬트리", nil)
	require.NoError(t, err)

	snap := metrics.Snapshot()
	assert.Equal(t, int64(2), snap.TotalSearches)
	assert.Equal(t, int64(1), snap.CacheHits)
}

func TestOrchestrator_FinalTopNBoundsResults(t *testing.T) {
	o := newTestOrchestrator(t, testCorpus())

	result, err := o.Search(context.Background(), "정리", nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(result.InternalDocs), DefaultConfig().FinalTopN)
}
