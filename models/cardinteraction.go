package models

import "time"

const (
	InteractionFlip           = "flip"
	InteractionMultipleChoice = "multiple_choice"
	InteractionFlag           = "flag"
	InteractionUnflag         = "unflag"
)

// CardInteraction is an append-only audit record of a single study event.
// Rows are written once and never updated; Correct is null for flag events.
type CardInteraction struct {
	ID        uint  `gorm:"primaryKey"`
	UserID    uint  `gorm:"not null;index"`
	CardID    uint  `gorm:"not null;index"`
	SessionID *uint `gorm:"index"`

	InteractionType     string   `gorm:"not null;size:30"`
	Correct             *bool    `gorm:"default:null"`
	ResponseTimeSeconds *float64 `gorm:"default:null"`
	SelectedOptionIndex *int     `gorm:"default:null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}
