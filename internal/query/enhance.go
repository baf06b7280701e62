package query

import (
	"fmt"
	"strings"
)

// Sentinel strings for absent inputs. Downstream prompt assembly requires a
// well-formed placeholder, never an empty string.
const (
	// NoCharacterInfo is returned by ContextForLLM when no context exists.
	NoCharacterInfo = "캐릭터 정보 없음."

	// NoSearchContext is returned by ContextForSearch when no context exists.
	NoSearchContext = "캐릭터 정보가 제공되지 않았습니다."
)

// Enhance prepends tagged character tokens onto the query so both lexical
// and dense retrieval can exploit exact entity terms. Fields are emitted in
// a fixed order; identical inputs always yield identical output. With no
// context the query is returned unchanged.
func Enhance(q string, cc *CharacterContext) string {
	if cc.IsEmpty() {
		return q
	}

	var parts []string
	if cc.Job != "" {
		parts = append(parts, "직업::"+cc.Job)
		if cc.JobEN != "" {
			parts = append(parts, "job::"+cc.JobEN)
		}
	}
	if cc.Fame > 0 {
		parts = append(parts, fmt.Sprintf("명성::%d", cc.Fame))
	}
	if cc.Weapon != "" {
		parts = append(parts, "무기::"+cc.Weapon)
	}
	if cc.EpicCount > 0 {
		parts = append(parts, fmt.Sprintf("에픽::%d", cc.EpicCount))
	}
	if cc.OriginalityCount > 0 {
		parts = append(parts, fmt.Sprintf("태초::%d", cc.OriginalityCount))
	}
	if cc.SetItemName != "" {
		set := "세트::" + cc.SetItemName
		if cc.SetItemRarity != "" {
			set += "(" + cc.SetItemRarity + ")"
		}
		parts = append(parts, set)
	}
	if cc.Title != "" {
		parts = append(parts, "칭호::"+cc.Title)
	}

	if len(parts) == 0 {
		return q
	}
	return strings.Join(parts, " | ") + " | " + q
}

// ContextForLLM renders the character context as a bullet list for prompt
// consumption. Returns NoCharacterInfo when no context is present.
func ContextForLLM(cc *CharacterContext) string {
	if cc.IsEmpty() {
		return NoCharacterInfo
	}

	var details []string
	if cc.Job != "" {
		details = append(details, "- 직업: "+cc.Job)
	}
	if cc.Fame > 0 {
		details = append(details, fmt.Sprintf("- 명성: %d", cc.Fame))
	}
	if cc.Weapon != "" {
		details = append(details, "- 무기: "+cc.Weapon)
	}
	if cc.EpicCount > 0 {
		details = append(details, fmt.Sprintf("- 에픽 아이템 개수: %d", cc.EpicCount))
	}
	if cc.OriginalityCount > 0 {
		details = append(details, fmt.Sprintf("- 태초 아이템 개수: %d", cc.OriginalityCount))
	}
	if cc.Title != "" {
		details = append(details, "- 칭호: "+cc.Title)
	}
	if cc.SetItemName != "" {
		set := "- 세트 아이템: " + cc.SetItemName
		if cc.SetItemRarity != "" {
			set += " (" + cc.SetItemRarity + " 등급)"
		}
		details = append(details, set)
	}
	if cc.Creature != "" {
		details = append(details, "- 크리쳐: "+cc.Creature)
	}
	if cc.Aura != "" {
		details = append(details, "- 오라: "+cc.Aura)
	}

	if len(details) == 0 {
		return "캐릭터 정보가 제공되었으나, 세부 내용을 파악할 수 없습니다."
	}

	return "사용자 캐릭터 정보:\n" + strings.Join(details, "\n") +
		"\n\n위 캐릭터 정보를 고려하여 맞춤형 조언을 제공하세요."
}

// ContextForSearch is the short projection used in web search prompts:
// only job and fame, the two fields that change which guides apply.
func ContextForSearch(cc *CharacterContext) string {
	if cc.IsEmpty() {
		return NoSearchContext
	}

	var details []string
	if cc.Job != "" {
		details = append(details, "- 직업: "+cc.Job)
	}
	if cc.Fame > 0 {
		details = append(details, fmt.Sprintf("- 명성: %d", cc.Fame))
	}

	if len(details) == 0 {
		return "캐릭터 정보가 제공되었으나, 세부 내용을 파악할 수 없습니다."
	}

	return "사용자 캐릭터 정보:\n" + strings.Join(details, "\n") +
		"\n\n위 캐릭터 정보를 고려하여 맞춤형 정보를 검색하세요."
}
