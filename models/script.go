package models

import "time"

// Script enthält die generierten Erzählbausteine einer Story (1:1).
// EditedHook ist der optionale Operator-Override; er darf nur gesetzt
// werden, solange die Story PENDING_REVIEW ist.
type Script struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	StoryID uint `json:"story_id" gorm:"uniqueIndex;not null"`

	Hook            string `json:"hook" gorm:"type:text"`
	WhatHappened    string `json:"what_happened" gorm:"type:text"`
	WhyItMatters    string `json:"why_it_matters" gorm:"type:text"`
	WhatHappensNext string `json:"what_happens_next" gorm:"type:text"`
	CTALine         string `json:"cta_line" gorm:"type:text"`

	DurationTargetSeconds int `json:"duration_target_seconds" gorm:"default:35"`

	EditedHook string `json:"edited_hook,omitempty" gorm:"type:text"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Script) TableName() string {
	return "scripts"
}

// EffectiveHook liefert den Operator-Override, falls vorhanden.
func (s *Script) EffectiveHook() string {
	if s.EditedHook != "" {
		return s.EditedHook
	}
	return s.Hook
}
