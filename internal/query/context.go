// Package query transforms raw user queries and optional character context
// into enhanced query strings and prompt-ready context blocks. Everything in
// this package is pure and deterministic: enhanced queries feed cache keys,
// so the same inputs must always produce the same output.
package query

import (
	"strconv"
	"strings"
)

// CharacterContext holds optional structured facts about the requesting
// user's in-game character. Every field is optional; the zero value and a
// nil pointer both mean "no character information".
type CharacterContext struct {
	// Job is the character's class/job name (e.g., "엘븐나이트").
	Job string `json:"job,omitempty"`

	// JobEN is an optional English alias for the job.
	JobEN string `json:"job_en,omitempty"`

	// Fame is the character's fame (prestige) value.
	Fame int `json:"fame,omitempty"`

	// Weapon is the equipped weapon name.
	Weapon string `json:"weapon,omitempty"`

	// EpicCount is the number of equipped epic-tier items.
	EpicCount int `json:"epic_count,omitempty"`

	// OriginalityCount is the number of equipped originality-tier items.
	OriginalityCount int `json:"originality_count,omitempty"`

	// SetItemName is the equipped set item name.
	SetItemName string `json:"set_item_name,omitempty"`

	// SetItemRarity is the set item rarity grade.
	SetItemRarity string `json:"set_item_rarity,omitempty"`

	// Title is the equipped title item.
	Title string `json:"title,omitempty"`

	// Creature is the equipped creature companion.
	Creature string `json:"creature,omitempty"`

	// Aura is the equipped aura.
	Aura string `json:"aura,omitempty"`
}

// IsEmpty reports whether the context carries no recognized fields.
func (c *CharacterContext) IsEmpty() bool {
	if c == nil {
		return true
	}
	return c.Job == "" && c.JobEN == "" && c.Fame == 0 && c.Weapon == "" &&
		c.EpicCount == 0 && c.OriginalityCount == 0 && c.SetItemName == "" &&
		c.Title == "" && c.Creature == "" && c.Aura == ""
}

// CacheProjection reduces the context to the small stable subset used for
// cache keys (job + fame). Two requests that differ only in equipment detail
// share cache entries; a different job or fame does not.
func (c *CharacterContext) CacheProjection() string {
	if c == nil {
		return ""
	}
	var parts []string
	if c.Job != "" {
		parts = append(parts, c.Job)
	}
	if c.Fame > 0 {
		parts = append(parts, strconv.Itoa(c.Fame))
	}
	return strings.Join(parts, "-")
}
