package service

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questline/guiderag/internal/config"
	"github.com/questline/guiderag/internal/query"
	"github.com/questline/guiderag/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Cache.Dir = t.TempDir()
	cfg.Embedding.Provider = "static"
	cfg.Search.FinalTopN = 3
	return cfg
}

func newTestService(t *testing.T, cfg *config.Config) *Service {
	t.Helper()
	svc, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func testCorpus() []*store.Document {
	return []*store.Document{
		{
			ID:      "elven_skills",
			Content: "엘븐나이트 스킬 트리 정리. 체인러시 위주로 찍는 것이 정석입니다.",
			Metadata: store.Metadata{
				Title:        "엘븐나이트 스킬 가이드",
				ClassName:    "엘븐나이트",
				QualityScore: "8.5",
			},
		},
		{
			ID:      "berserker_build",
			Content: "버서커 무기는 광검이 주력입니다. 출혈 세팅을 추천합니다.",
			Metadata: store.Metadata{
				Title:     "버서커 세팅",
				ClassName: "버서커(남)",
			},
		},
		{
			ID:      "fame_guide",
			Content: "명성 올리는 방법. 에픽 장비와 크리쳐로 명성을 올릴 수 있습니다.",
			Metadata: store.Metadata{
				Title: "명성 가이드",
			},
		},
	}
}

func TestService_IndexAndSearch(t *testing.T) {
	svc := newTestService(t, testConfig(t))
	ctx := context.Background()

	require.NoError(t, svc.Index(ctx, testCorpus()))

	count, err := svc.DocumentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	result, err := svc.GetAnswerInputs(ctx, "엘븐나이트 스킬 추천", nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.InternalDocs)
	assert.Equal(t, "elven_skills", result.InternalDocs[0].ID)
	assert.NotEqual(t, query.NoResults, result.InternalContext)
	assert.False(t, result.UsedWebSearch)
}

func TestService_EmptyCorpus(t *testing.T) {
	svc := newTestService(t, testConfig(t))

	result, err := svc.GetAnswerInputs(context.Background(), "엘븐나이트 스킬", nil)
	require.NoError(t, err)
	assert.Empty(t, result.InternalDocs)
	assert.Equal(t, query.NoResults, result.InternalContext)
}

func TestService_IndexEmptyBatch(t *testing.T) {
	svc := newTestService(t, testConfig(t))
	require.NoError(t, svc.Index(context.Background(), nil))
}

func TestService_PersistenceAcrossRestart(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	svc, err := New(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, svc.Index(ctx, testCorpus()))
	require.NoError(t, svc.Close())

	reopened := newTestService(t, cfg)
	count, err := reopened.DocumentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	result, err := reopened.GetAnswerInputs(ctx, "버서커 무기 추천", nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.InternalDocs)
	assert.Equal(t, "berserker_build", result.InternalDocs[0].ID)
}

func TestService_ResultCacheHit(t *testing.T) {
	svc := newTestService(t, testConfig(t))
	ctx := context.Background()
	require.NoError(t, svc.Index(ctx, testCorpus()))

	cc := &query.CharacterContext{Job: "엘븐나이트", Fame: 41000}

	first, err := svc.GetAnswerInputs(ctx, "스킬 트리", cc)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := svc.GetAnswerInputs(ctx, "스킬 트리", cc)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.InternalContext, second.InternalContext)
}

func TestService_RedisResultCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Redis.Addr = mr.Addr()

	svc := newTestService(t, cfg)
	ctx := context.Background()
	require.NoError(t, svc.Index(ctx, testCorpus()))

	first, err := svc.GetAnswerInputs(ctx, "명성 올리는 방법", nil)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.NotEmpty(t, mr.Keys())

	second, err := svc.GetAnswerInputs(ctx, "명성 올리는 방법", nil)
	require.NoError(t, err)
	assert.True(t, second.Cached)
}

func TestService_MetricsRecorded(t *testing.T) {
	svc := newTestService(t, testConfig(t))
	ctx := context.Background()
	require.NoError(t, svc.Index(ctx, testCorpus()))

	_, err := svc.GetAnswerInputs(ctx, "엘븐나이트 스킬", nil)
	require.NoError(t, err)

	snap := svc.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalSearches)

	require.NoError(t, svc.FlushMetrics())
}

func TestService_StaticFallbackWithoutAPIKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embedding.Provider = "gemini" // no API key set

	svc := newTestService(t, cfg)
	require.NoError(t, svc.Index(context.Background(), testCorpus()))

	result, err := svc.GetAnswerInputs(context.Background(), "버서커 세팅", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.InternalDocs)
}
