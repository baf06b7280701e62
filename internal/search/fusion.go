package search

import (
	"sort"

	"github.com/questline/guiderag/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter. k=60 is
// empirically validated across domains (Azure AI Search, OpenSearch, etc.).
const DefaultRRFConstant = 60

// FusedResult is a single result after rank fusion.
type FusedResult struct {
	DocID       string  // document identifier
	Score       float64 // combined RRF score, normalized 0-1
	LexScore    float64 // original BM25 score (preserved)
	LexRank     int     // position in lexical list (1-indexed, 0 if absent)
	DenseScore  float64 // original vector similarity (preserved)
	DenseRank   int     // position in dense list (1-indexed, 0 if absent)
	InBothLists bool    // document appeared in both result lists
}

// RRFFusion combines dense and lexical results using weighted Reciprocal
// Rank Fusion:
//
//	score(d) = Σ weight_i / (k + rank_i)
//
// where rank_i is the 1-indexed position of d in list i. A document absent
// from one list gets that list's contribution at a synthetic missing rank
// of max(len(dense), len(lexical)) + 1, so single-list hits are penalized
// but not zeroed.
type RRFFusion struct {
	K int
}

// NewRRFFusion creates an RRF fusion instance. k <= 0 falls back to 60.
func NewRRFFusion(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse combines dense and lexical results into one ranked, deduplicated
// list. A doc_id present in both lists produces exactly one fused entry.
//
// Sorting is deterministic: Score desc, then InBothLists (true first),
// then LexScore desc, then DocID asc.
func (f *RRFFusion) Fuse(
	dense []*store.VectorResult,
	lexical []*store.LexicalResult,
	weights Weights,
) []*FusedResult {
	if len(dense) == 0 && len(lexical) == 0 {
		return []*FusedResult{}
	}

	// Merge both lists into per-document entries first; scores are
	// computed afterwards so the synthetic rank for a missing side is a
	// substitution, not a correction pass.
	byID := make(map[string]*FusedResult, len(dense)+len(lexical))
	for rank, r := range dense {
		byID[r.ID] = &FusedResult{
			DocID:      r.ID,
			DenseScore: float64(r.Score),
			DenseRank:  rank + 1,
		}
	}
	for rank, r := range lexical {
		entry, seen := byID[r.DocID]
		if !seen {
			entry = &FusedResult{DocID: r.DocID}
			byID[r.DocID] = entry
		}
		entry.LexScore = r.Score
		entry.LexRank = rank + 1
		entry.InBothLists = seen
	}

	missing := len(dense) + 1
	if len(lexical) > len(dense) {
		missing = len(lexical) + 1
	}

	results := make([]*FusedResult, 0, len(byID))
	var maxScore float64
	for _, entry := range byID {
		denseRank, lexRank := entry.DenseRank, entry.LexRank
		if denseRank == 0 {
			denseRank = missing
		}
		if lexRank == 0 {
			lexRank = missing
		}
		entry.Score = weights.Dense/float64(f.K+denseRank) +
			weights.Lexical/float64(f.K+lexRank)
		if entry.Score > maxScore {
			maxScore = entry.Score
		}
		results = append(results, entry)
	}

	// Score desc, both-lists hits first on ties, then BM25, then doc_id
	// so equal candidates order identically across runs.
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.InBothLists != b.InBothLists {
			return a.InBothLists
		}
		if a.LexScore != b.LexScore {
			return a.LexScore > b.LexScore
		}
		return a.DocID < b.DocID
	})

	if maxScore > 0 {
		for _, entry := range results {
			entry.Score /= maxScore
		}
	}
	return results
}
