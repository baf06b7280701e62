package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/questline/guiderag/internal/store"
)

func TestEnhance_NilContext(t *testing.T) {
	assert.Equal(t, "스킬트리 추천", Enhance("스킬트리 추천", nil))
}

func TestEnhance_EmptyContext(t *testing.T) {
	assert.Equal(t, "스킬트리 추천", Enhance("스킬트리 추천", &CharacterContext{}))
}

func TestEnhance_FullContext(t *testing.T) {
	cc := &CharacterContext{
		Job:              "레인저(여)",
		JobEN:            "Female Ranger",
		Fame:             12038,
		Weapon:           "리볼버",
		EpicCount:        11,
		OriginalityCount: 2,
		SetItemName:      "칠흑의 정화",
		SetItemRarity:    "에픽",
		Title:            "순환하는 계절의 틈새",
	}

	got := Enhance("스킬트리 추천", cc)
	want := "직업::레인저(여) | job::Female Ranger | 명성::12038 | 무기::리볼버 | " +
		"에픽::11 | 태초::2 | 세트::칠흑의 정화(에픽) | 칭호::순환하는 계절의 틈새 | 스킬트리 추천"
	assert.Equal(t, want, got)
}

// Enhancement feeds cache keys, so it must be pure: same inputs, same output.
func TestEnhance_Deterministic(t *testing.T) {
	cc := &CharacterContext{Job: "엘븐나이트", Fame: 45000}
	first := Enhance("졸업 장비", cc)
	second := Enhance("졸업 장비", cc)
	assert.Equal(t, first, second)
	assert.Contains(t, first, "직업::엘븐나이트")
	assert.Contains(t, first, "명성::45000")
}

func TestEnhance_PartialContext(t *testing.T) {
	got := Enhance("명성 올리기", &CharacterContext{Fame: 30000})
	assert.Equal(t, "명성::30000 | 명성 올리기", got)
}

func TestContextForLLM_Absent(t *testing.T) {
	assert.Equal(t, NoCharacterInfo, ContextForLLM(nil))
	assert.Equal(t, NoCharacterInfo, ContextForLLM(&CharacterContext{}))
}

func TestContextForLLM_RendersRecognizedFields(t *testing.T) {
	got := ContextForLLM(&CharacterContext{
		Job:           "엘븐나이트",
		Fame:          41200,
		SetItemName:   "세렌디피티",
		SetItemRarity: "태초",
		Creature:      "진 : 아츠비",
	})
	assert.Contains(t, got, "- 직업: 엘븐나이트")
	assert.Contains(t, got, "- 명성: 41200")
	assert.Contains(t, got, "- 세트 아이템: 세렌디피티 (태초 등급)")
	assert.Contains(t, got, "- 크리쳐: 진 : 아츠비")
}

func TestContextForSearch_JobAndFameOnly(t *testing.T) {
	got := ContextForSearch(&CharacterContext{
		Job:    "버서커",
		Fame:   38000,
		Weapon: "광검", // not part of the search projection
	})
	assert.Contains(t, got, "- 직업: 버서커")
	assert.Contains(t, got, "- 명성: 38000")
	assert.NotContains(t, got, "광검")
}

func TestContextForSearch_Absent(t *testing.T) {
	assert.Equal(t, NoSearchContext, ContextForSearch(nil))
}

func TestCacheProjection(t *testing.T) {
	tests := []struct {
		name string
		cc   *CharacterContext
		want string
	}{
		{"nil", nil, ""},
		{"empty", &CharacterContext{}, ""},
		{"job only", &CharacterContext{Job: "버서커"}, "버서커"},
		{"fame only", &CharacterContext{Fame: 12000}, "12000"},
		{"job and fame", &CharacterContext{Job: "버서커", Fame: 12000}, "버서커-12000"},
		// equipment detail does not fragment the cache
		{"irrelevant fields ignored", &CharacterContext{Job: "버서커", Fame: 12000, Weapon: "광검", Title: "칭호"}, "버서커-12000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cc.CacheProjection())
		})
	}
}

func TestFormatDocs_Empty(t *testing.T) {
	assert.Equal(t, NoResults, FormatDocs(nil, "내부"))
	assert.Equal(t, NoResults, FormatDocs([]*store.Document{}, "내부"))
}

func TestFormatDocs_NumbersAndURLs(t *testing.T) {
	docs := []*store.Document{
		{ID: "a", Content: "첫 번째 가이드", Metadata: store.Metadata{URL: "https://example.com/1"}},
		{ID: "b", Content: "두 번째 가이드"},
	}
	got := FormatDocs(docs, "내부")
	assert.Contains(t, got, "[내부 문서 1] 첫 번째 가이드")
	assert.Contains(t, got, "참고 링크: https://example.com/1")
	assert.Contains(t, got, "[내부 문서 2] 두 번째 가이드")
}
