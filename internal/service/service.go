// Package service assembles the retrieval engine from configuration:
// stores, embedder, caches, reranker, and web search wired into the hybrid
// orchestrator. Everything is constructed once here and shared; nothing in
// the lower packages holds global state.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/questline/guiderag/internal/cache"
	"github.com/questline/guiderag/internal/config"
	"github.com/questline/guiderag/internal/embed"
	"github.com/questline/guiderag/internal/query"
	"github.com/questline/guiderag/internal/search"
	"github.com/questline/guiderag/internal/store"
	"github.com/questline/guiderag/internal/telemetry"
	"github.com/questline/guiderag/internal/websearch"
)

// On-disk layout under the data directory.
const (
	documentsFile = "documents.db"
	vectorsFile   = "vectors.gob"
	lexicalDir    = "lexical.bleve"

	// lexicalStamp is the cache artifact whose age decides whether the
	// lexical index is rebuilt from the corpus.
	lexicalStamp = "lexical_index_stamp"
)

// Service owns the full retrieval pipeline for one knowledge base.
type Service struct {
	cfg *config.Config

	cacheMgr *cache.Manager
	redis    *redis.Client

	docs     *store.SQLiteDocumentStore
	lexical  *store.BleveLexicalIndex
	dense    *store.HNSWVectorStore
	embedder embed.Embedder
	reranker search.Reranker
	web      *websearch.GeminiClient

	metrics      *telemetry.SearchMetrics
	metricsStore *telemetry.SQLiteMetricsStore

	orchestrator *search.Orchestrator
}

// New builds a Service from configuration. The data directory (corpus
// database, vector snapshot, lexical index) lives under cfg.Cache.Dir.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	s := &Service{cfg: cfg}

	if err := s.initStores(ctx, cfg); err != nil {
		s.closeQuiet()
		return nil, err
	}
	if err := s.initPipeline(ctx, cfg); err != nil {
		s.closeQuiet()
		return nil, err
	}
	return s, nil
}

func (s *Service) initStores(ctx context.Context, cfg *config.Config) error {
	dir := cfg.Cache.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	mgr, err := cache.NewManager(dir,
		cfg.Cache.ShortExpiryDuration(), cfg.Cache.LongExpiryDuration())
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	s.cacheMgr = mgr

	docs, err := store.NewSQLiteDocumentStore(filepath.Join(dir, documentsFile))
	if err != nil {
		return err
	}
	s.docs = docs

	metricsStore, err := telemetry.NewSQLiteMetricsStore(docs.DB())
	if err != nil {
		return fmt.Errorf("init telemetry store: %w", err)
	}
	s.metricsStore = metricsStore
	s.metrics = telemetry.NewSearchMetrics(telemetry.DefaultMetricsConfig())

	s.embedder = buildEmbedder(cfg)

	dense, err := openVectorStore(filepath.Join(dir, vectorsFile), s.embedder.Dimensions())
	if err != nil {
		return err
	}
	s.dense = dense

	lexical, err := store.NewBleveLexicalIndex(filepath.Join(dir, lexicalDir))
	if err != nil {
		return err
	}
	s.lexical = lexical

	return s.refreshLexical(ctx)
}

func (s *Service) initPipeline(ctx context.Context, cfg *config.Config) error {
	results := s.resultCache(cfg)

	var reranker search.Reranker
	if cfg.Reranker.Enabled {
		r, err := search.NewHTTPReranker(ctx, search.HTTPRerankerConfig{
			Endpoint: cfg.Reranker.Endpoint,
			Model:    cfg.Reranker.Model,
		})
		if err != nil {
			// Reranking is an optional quality stage. Keep serving on
			// fused order when the server is down.
			slog.Warn("reranker unavailable, using fused order",
				slog.String("endpoint", cfg.Reranker.Endpoint),
				slog.String("error", err.Error()))
		} else {
			reranker = r
		}
	}

	if cfg.WebSearch.Enabled {
		web, err := websearch.NewGeminiClient(websearch.Config{
			APIKey:        cfg.WebSearch.APIKey,
			Model:         cfg.WebSearch.Model,
			RecencyMonths: cfg.WebSearch.RecencyMonths,
		}, results)
		if err != nil {
			return fmt.Errorf("init web search: %w", err)
		}
		s.web = web
	}

	weights := search.NewWeightSelectorWithWeights(
		cfg.Search.RecencyKeywords,
		search.Weights{Dense: cfg.Search.DefaultDenseWeight, Lexical: 1 - cfg.Search.DefaultDenseWeight},
		search.Weights{Dense: cfg.Search.RecencyDenseWeight, Lexical: 1 - cfg.Search.RecencyDenseWeight},
	)
	rescorer := search.NewRescorer(search.RescoreConfig{
		QualityWeight: cfg.Search.QualityWeight,
		ClassBonus:    cfg.Search.ClassBonus,
		ViewsWeight:   cfg.Search.ViewsWeight,
		LikesWeight:   cfg.Search.LikesWeight,
	})

	deps := search.OrchestratorDeps{
		Embedder: s.embedder,
		Lexical:  s.lexical,
		Dense:    s.dense,
		Docs:     s.docs,
		Reranker: reranker,
		Results:  results,
		Weights:  weights,
		Rescorer: rescorer,
		Metrics:  s.metrics,
	}
	if s.web != nil {
		deps.Web = s.web
	}

	s.orchestrator = search.NewOrchestrator(search.Config{
		DenseK:           cfg.Search.DenseK,
		DenseFetchK:      cfg.Search.DenseFetchK,
		MMRLambda:        cfg.Search.MMRLambda,
		LexicalK:         cfg.Search.LexicalK,
		RRFConstant:      cfg.Search.RRFConstant,
		RerankTopN:       cfg.Search.RerankTopN,
		FinalTopN:        cfg.Search.FinalTopN,
		BranchTimeout:    cfg.Search.BranchTimeoutDuration(),
		WebSearchEnabled: s.web != nil,
	}, deps)
	s.reranker = reranker

	return nil
}

// resultCache picks the search-result cache backend: Redis when an address
// is configured, the file cache otherwise.
func (s *Service) resultCache(cfg *config.Config) cache.ResultCache {
	if cfg.Redis.Addr == "" {
		return s.cacheMgr
	}
	s.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	slog.Info("using redis result cache", slog.String("addr", cfg.Redis.Addr))
	return cache.NewRedisResultCache(s.redis, cfg.Cache.ShortExpiryDuration())
}

// buildEmbedder returns the configured embedder wrapped in an LRU cache.
// A gemini provider without an API key degrades to the static embedder.
func buildEmbedder(cfg *config.Config) embed.Embedder {
	var inner embed.Embedder
	if cfg.Embedding.Provider == "gemini" && cfg.WebSearch.APIKey != "" {
		g, err := embed.NewGeminiEmbedder(embed.GeminiConfig{
			APIKey:     cfg.WebSearch.APIKey,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			BatchSize:  cfg.Embedding.BatchSize,
		})
		if err == nil {
			inner = g
		} else {
			slog.Warn("gemini embedder init failed, falling back to static",
				slog.String("error", err.Error()))
		}
	}
	if inner == nil {
		if cfg.Embedding.Provider == "gemini" && cfg.WebSearch.APIKey == "" {
			slog.Warn("no GEMINI_API_KEY, falling back to static embedder")
		}
		inner = embed.NewStaticEmbedder()
	}
	return embed.NewCachedEmbedder(inner, cfg.Embedding.CacheSize)
}

func openVectorStore(path string, dims int) (*store.HNSWVectorStore, error) {
	if _, err := os.Stat(path); err == nil {
		loaded, err := store.LoadHNSWVectorStore(path)
		if err == nil {
			return loaded, nil
		}
		// A broken snapshot costs a re-index, not a failed startup.
		slog.Warn("vector snapshot unreadable, starting empty",
			slog.String("path", path), slog.String("error", err.Error()))
	}
	return store.NewHNSWVectorStore(store.VectorStoreConfig{Dimensions: dims})
}

// refreshLexical rebuilds the lexical index when the staleness stamp has
// expired or the index is empty while the corpus is not.
func (s *Service) refreshLexical(ctx context.Context) error {
	count, err := s.docs.Count(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	indexed, err := s.lexical.DocCount()
	if err != nil {
		return err
	}

	var stamp time.Time
	fresh := s.cacheMgr.Load(lexicalStamp, s.cacheMgr.ShortExpiry(), &stamp)
	if fresh && indexed > 0 {
		return nil
	}

	docs, err := s.docs.All(ctx)
	if err != nil {
		return err
	}
	if err := s.lexical.BuildFromCorpus(ctx, docs); err != nil {
		return err
	}
	s.cacheMgr.Store(lexicalStamp, time.Now())
	slog.Info("lexical index rebuilt", slog.Int("documents", len(docs)))
	return nil
}

// GetAnswerInputs runs the hybrid pipeline and returns everything the
// answer-generation layer needs: formatted internal and web contexts, the
// enhanced query, and branch timings.
func (s *Service) GetAnswerInputs(ctx context.Context, q string, cc *query.CharacterContext) (*search.Result, error) {
	return s.orchestrator.Search(ctx, q, cc)
}

// Index ingests preprocessed documents: persists them, embeds their
// enriched surfaces in batches, and rebuilds both retrieval indexes.
func (s *Service) Index(ctx context.Context, docs []*store.Document) error {
	if len(docs) == 0 {
		return nil
	}

	if err := s.docs.Save(ctx, docs); err != nil {
		return fmt.Errorf("save documents: %w", err)
	}

	ids := make([]string, len(docs))
	texts := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
		texts[i] = store.EnrichSurface(d)
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed corpus: %w", err)
	}
	if err := s.dense.Add(ctx, ids, vectors); err != nil {
		return fmt.Errorf("index vectors: %w", err)
	}
	if err := s.dense.Save(filepath.Join(s.cfg.Cache.Dir, vectorsFile)); err != nil {
		return fmt.Errorf("persist vectors: %w", err)
	}

	all, err := s.docs.All(ctx)
	if err != nil {
		return err
	}
	if err := s.lexical.BuildFromCorpus(ctx, all); err != nil {
		return fmt.Errorf("build lexical index: %w", err)
	}
	s.cacheMgr.Store(lexicalStamp, time.Now())

	slog.Info("corpus indexed",
		slog.Int("documents", len(docs)),
		slog.Int("vectors", s.dense.Count()))
	return nil
}

// DocumentCount reports the corpus size.
func (s *Service) DocumentCount(ctx context.Context) (int, error) {
	return s.docs.Count(ctx)
}

// Metrics returns the in-memory search metrics collector.
func (s *Service) Metrics() *telemetry.SearchMetrics {
	return s.metrics
}

// FlushMetrics persists the current metrics snapshot under today's date.
func (s *Service) FlushMetrics() error {
	if s.metricsStore == nil {
		return nil
	}
	snap := s.metrics.Snapshot()
	if snap.TotalSearches == 0 {
		return nil
	}
	return s.metricsStore.Flush(time.Now().Format("2006-01-02"), snap)
}

// Close flushes metrics and releases every component.
func (s *Service) Close() error {
	var errs []error

	if s.metricsStore != nil {
		if err := s.FlushMetrics(); err != nil {
			errs = append(errs, fmt.Errorf("flush metrics: %w", err))
		}
	}
	if s.reranker != nil {
		errs = append(errs, s.reranker.Close())
	}
	if s.web != nil {
		errs = append(errs, s.web.Close())
	}
	if s.embedder != nil {
		errs = append(errs, s.embedder.Close())
	}
	if s.lexical != nil {
		errs = append(errs, s.lexical.Close())
	}
	if s.dense != nil {
		errs = append(errs, s.dense.Close())
	}
	if s.docs != nil {
		errs = append(errs, s.docs.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}

	return errors.Join(errs...)
}

func (s *Service) closeQuiet() {
	if err := s.Close(); err != nil {
		slog.Debug("partial close", slog.String("error", err.Error()))
	}
}
