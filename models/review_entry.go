package models

import "time"

// Status eines Review-Eintrags; APPROVED und REJECTED sind terminal.
const (
	ReviewStatusPending  = "PENDING"
	ReviewStatusApproved = "APPROVED"
	ReviewStatusRejected = "REJECTED"
)

// ReviewQueueEntry ist der offene Review-Vorgang einer Story. Der Status
// spiegelt und treibt den Story-Status; pro Story existiert höchstens ein
// Eintrag. Aufgelöst wird ausschließlich per Compare-and-Swap auf PENDING;
// der erste Schreiber (Operator oder Auto-Approve-Timer) gewinnt.
type ReviewQueueEntry struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	StoryID  uint `json:"story_id" gorm:"uniqueIndex;not null"`
	ScriptID uint `json:"script_id" gorm:"index;not null"`

	Status     string     `json:"status" gorm:"index;default:'PENDING'"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (ReviewQueueEntry) TableName() string {
	return "review_queue"
}
