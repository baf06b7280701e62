package search

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/questline/guiderag/internal/store"
)

// RescoreConfig tunes the metadata rescoring pass. The shape of the
// formula matters more than the exact constants: base score plus bounded
// additive terms, with the class-match bonus sized to dominate.
type RescoreConfig struct {
	// QualityWeight scales the precomputed quality_score metadata.
	QualityWeight float64

	// ClassBonus is added on a class_name match against the query. Sized
	// to outweigh quality and engagement combined, because exact entity
	// relevance beats generic quality in this domain.
	ClassBonus float64

	// ViewsWeight and LikesWeight scale log-saturated engagement counts so
	// no document wins purely on popularity.
	ViewsWeight float64
	LikesWeight float64
}

// DefaultRescoreConfig returns the default rescoring weights.
func DefaultRescoreConfig() RescoreConfig {
	return RescoreConfig{
		QualityWeight: 0.2,
		ClassBonus:    5.0,
		ViewsWeight:   0.05,
		LikesWeight:   0.1,
	}
}

// Rescorer is the final ordering pass before context assembly. It starts
// every document at a base score of 1.0 and adds metadata-derived terms.
// Malformed or missing metadata contributes zero; it never fails a
// document out of the result set.
type Rescorer struct {
	config RescoreConfig
}

// NewRescorer creates a rescorer. Zero-valued config fields fall back to
// defaults.
func NewRescorer(cfg RescoreConfig) *Rescorer {
	def := DefaultRescoreConfig()
	if cfg.QualityWeight == 0 {
		cfg.QualityWeight = def.QualityWeight
	}
	if cfg.ClassBonus == 0 {
		cfg.ClassBonus = def.ClassBonus
	}
	if cfg.ViewsWeight == 0 {
		cfg.ViewsWeight = def.ViewsWeight
	}
	if cfg.LikesWeight == 0 {
		cfg.LikesWeight = def.LikesWeight
	}
	return &Rescorer{config: cfg}
}

// Rescore reorders docs by metadata score and truncates to topN. Ties keep
// the incoming order, so rescoring on metadata-free documents is the
// identity. topN <= 0 keeps all documents.
func (r *Rescorer) Rescore(q string, docs []*store.Document, topN int) []*store.Document {
	if len(docs) == 0 {
		return []*store.Document{}
	}

	type scored struct {
		doc   *store.Document
		score float64
		pos   int
	}

	items := make([]scored, len(docs))
	for i, d := range docs {
		items[i] = scored{doc: d, score: r.score(q, d), pos: i}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].pos < items[j].pos
	})

	if topN > 0 && topN < len(items) {
		items = items[:topN]
	}

	result := make([]*store.Document, len(items))
	for i, it := range items {
		result[i] = it.doc
	}
	return result
}

// score computes base 1.0 plus the additive metadata terms.
func (r *Rescorer) score(q string, d *store.Document) float64 {
	score := 1.0

	if quality, err := strconv.ParseFloat(strings.TrimSpace(d.Metadata.QualityScore), 64); err == nil {
		score += quality * r.config.QualityWeight
	}

	if classMatches(q, d.Metadata.ClassName) {
		score += r.config.ClassBonus
	}

	score += r.config.ViewsWeight * saturate(d.Metadata.Views)
	score += r.config.LikesWeight * saturate(d.Metadata.Likes)

	return score
}

// saturate parses a count leniently and applies log1p so bonuses grow
// sublinearly. Unparsable or negative values contribute 0.
func saturate(raw string) float64 {
	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || n <= 0 {
		return 0
	}
	return math.Log1p(n)
}

// classMatches reports whether the document's class_name matches an entity
// in the query: case-insensitive substring in either direction, or a
// partial match on class-name tokens (split on whitespace and parens, so
// "버서커(남)" still matches a "버서커" query).
func classMatches(q, className string) bool {
	className = strings.TrimSpace(className)
	if className == "" || q == "" {
		return false
	}

	loweredQuery := strings.ToLower(q)
	loweredClass := strings.ToLower(className)

	if strings.Contains(loweredQuery, loweredClass) || strings.Contains(loweredClass, loweredQuery) {
		return true
	}

	for _, token := range splitClassTokens(loweredClass) {
		if token != "" && strings.Contains(loweredQuery, token) {
			return true
		}
	}
	return false
}

func splitClassTokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '(' || r == ')' || r == '/'
	})
}
