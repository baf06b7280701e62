package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetermineWeights_DefaultFavorsLexical(t *testing.T) {
	s := NewWeightSelector(nil)

	w := s.DetermineWeights("직업::엘븐나이트 | 명성::41000 | 스킬트리 알려줘")
	assert.Greater(t, w.Lexical, w.Dense)
	assert.InDelta(t, 1.0, w.Dense+w.Lexical, 1e-9)
}

func TestDetermineWeights_RecencyKeywordFavorsDense(t *testing.T) {
	s := NewWeightSelector(nil)

	tests := []string{
		"최신 패치 내용",
		"이번 업데이트 정리",
		"현재 종결 세팅",
		"latest berserker build",
	}
	for _, q := range tests {
		w := s.DetermineWeights(q)
		assert.Greater(t, w.Dense, w.Lexical, "query %q should favor dense", q)
		assert.GreaterOrEqual(t, w.Dense, 0.6, "query %q", q)
	}
}

func TestDetermineWeights_CaseInsensitive(t *testing.T) {
	s := NewWeightSelector(nil)
	w := s.DetermineWeights("LATEST raid gear")
	assert.Greater(t, w.Dense, w.Lexical)
}

func TestDetermineWeights_CustomKeywords(t *testing.T) {
	s := NewWeightSelector([]string{"신규"})

	assert.Greater(t, s.DetermineWeights("신규 던전 공략").Dense, 0.5)
	// The default keyword list is replaced, not extended.
	assert.Less(t, s.DetermineWeights("최신 패치").Dense, 0.5)
}

func TestDetermineWeights_CachedDecisionIsStable(t *testing.T) {
	s := NewWeightSelector(nil)

	first := s.DetermineWeights("최신 패치 내용")
	second := s.DetermineWeights("최신 패치 내용")
	assert.Equal(t, first, second)
}
