package search

import (
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultRecencyKeywords mark queries asking about the current state of the
// game rather than evergreen mechanics. Matching is case-insensitive
// substring, so "업데이트된" matches "업데이트".
var defaultRecencyKeywords = []string{
	"최신",
	"패치",
	"업데이트",
	"현재",
	"요즘",
	"최근",
	"개편",
	"종결",
	"latest",
	"patch",
	"update",
	"current",
	"meta",
}

// weightCacheSize bounds the per-query weight decision cache.
const weightCacheSize = 512

// WeightSelector chooses fusion weights per query. This is a deliberate
// keyword heuristic, not a learned model: recency-intent queries get
// dense-favoring weights, everything else favors lexical matching.
type WeightSelector struct {
	keywords []string
	def      Weights
	recency  Weights
	cache    *lru.Cache[string, Weights]
}

// NewWeightSelector creates a selector with the given recency keywords and
// the stock weight pairs. An empty list falls back to the defaults.
func NewWeightSelector(keywords []string) *WeightSelector {
	return NewWeightSelectorWithWeights(keywords, DefaultWeights(), RecencyWeights())
}

// NewWeightSelectorWithWeights creates a selector with tuned weight pairs.
func NewWeightSelectorWithWeights(keywords []string, def, recency Weights) *WeightSelector {
	if len(keywords) == 0 {
		keywords = defaultRecencyKeywords
	}
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	cache, _ := lru.New[string, Weights](weightCacheSize)
	return &WeightSelector{keywords: lowered, def: def, recency: recency, cache: cache}
}

// DetermineWeights returns the fusion weights for a query.
func (s *WeightSelector) DetermineWeights(q string) Weights {
	if w, ok := s.cache.Get(q); ok {
		return w
	}

	w := s.def
	lowered := strings.ToLower(q)
	for _, kw := range s.keywords {
		if strings.Contains(lowered, kw) {
			w = s.recency
			slog.Debug("recency intent detected",
				slog.String("keyword", kw),
				slog.Float64("dense_weight", w.Dense))
			break
		}
	}

	s.cache.Add(q, w)
	return w
}
