// Package telemetry collects local search metrics: latency distribution,
// cache effectiveness, web-search usage, popular query terms, and queries
// that returned nothing. All data stays on the host.
package telemetry

import (
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP50   LatencyBucket = "p50"   // <50ms
	BucketP200  LatencyBucket = "p200"  // 50-200ms
	BucketP500  LatencyBucket = "p500"  // 200-500ms
	BucketP2000 LatencyBucket = "p2000" // 500ms-2s
	BucketSlow  LatencyBucket = "slow"  // >=2s
)

// LatencyToBucket converts a duration to its histogram bucket. The buckets
// are sized for a pipeline whose hot path is cache hits (tens of ms) and
// whose cold path crosses the network twice.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 50:
		return BucketP50
	case ms < 200:
		return BucketP200
	case ms < 500:
		return BucketP500
	case ms < 2000:
		return BucketP2000
	default:
		return BucketSlow
	}
}

// SearchEvent is one completed search call.
type SearchEvent struct {
	Query         string
	ResultCount   int
	UsedWebSearch bool
	CacheHit      bool
	Latency       time.Duration
	Timestamp     time.Time
}

// IsZeroResult reports whether the search returned nothing at all.
func (e SearchEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int // next write position
	size     int
	capacity int
}

// NewCircularBuffer creates a circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add appends an item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity

	if b.size < b.capacity {
		b.size++
	}
}

// Items returns all items in FIFO order (oldest first).
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []T{}
	}

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms extracts searchable terms from a query. Terms are
// lowercased; single-rune fragments (particles, stray jamo) are dropped.
func ExtractTerms(q string) []string {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return nil
	}

	var terms []string
	for _, w := range strings.Fields(q) {
		if len([]rune(w)) >= 2 {
			terms = append(terms, w)
		}
	}

	if len(terms) == 0 {
		return nil
	}
	return terms
}

// TermCount is a term and its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is an immutable view of collected metrics.
type Snapshot struct {
	TotalSearches       int64                   `json:"total_searches"`
	CacheHits           int64                   `json:"cache_hits"`
	WebSearches         int64                   `json:"web_searches"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	TopTerms            []TermCount             `json:"top_terms"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	Since               time.Time               `json:"since"`
}

// CacheHitRate returns the fraction of searches served from cache.
func (s *Snapshot) CacheHitRate() float64 {
	if s.TotalSearches == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(s.TotalSearches)
}

// MetricsConfig configures the collector.
type MetricsConfig struct {
	TopTermsCapacity    int // max tracked terms (default: 100)
	ZeroResultsCapacity int // max tracked zero-result queries (default: 100)
}

// DefaultMetricsConfig returns sensible defaults.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		TopTermsCapacity:    100,
		ZeroResultsCapacity: 100,
	}
}

// SearchMetrics collects search telemetry. Thread-safe.
type SearchMetrics struct {
	mu sync.RWMutex

	totalSearches   int64
	cacheHits       int64
	webSearches     int64
	zeroResultCount int64
	zeroResults     *CircularBuffer[string]
	topTerms        *lru.Cache[string, int64]
	latencies       map[LatencyBucket]int64
	startTime       time.Time
}

// NewSearchMetrics creates a metrics collector.
func NewSearchMetrics(cfg MetricsConfig) *SearchMetrics {
	def := DefaultMetricsConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = def.ZeroResultsCapacity
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	return &SearchMetrics{
		zeroResults: NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		topTerms:    topTerms,
		latencies:   make(map[LatencyBucket]int64),
		startTime:   time.Now(),
	}
}

// Record registers one completed search.
func (m *SearchMetrics) Record(e SearchEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalSearches++
	if e.CacheHit {
		m.cacheHits++
	}
	if e.UsedWebSearch {
		m.webSearches++
	}
	m.latencies[LatencyToBucket(e.Latency)]++

	if e.IsZeroResult() {
		m.zeroResultCount++
		m.zeroResults.Add(e.Query)
	}

	for _, term := range ExtractTerms(e.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
	}
}

// Snapshot returns a copy of the current metrics, top terms sorted by
// frequency descending.
func (m *SearchMetrics) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	terms := make([]TermCount, 0, m.topTerms.Len())
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			terms = append(terms, TermCount{Term: key, Count: count})
		}
	}
	sortTermCounts(terms)

	return &Snapshot{
		TotalSearches:       m.totalSearches,
		CacheHits:           m.cacheHits,
		WebSearches:         m.webSearches,
		ZeroResultCount:     m.zeroResultCount,
		ZeroResultQueries:   m.zeroResults.Items(),
		TopTerms:            terms,
		LatencyDistribution: latencies,
		Since:               m.startTime,
	}
}

func sortTermCounts(terms []TermCount) {
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})
}
