package models

import (
	"time"

	"gorm.io/gorm"
)

// CardStat tracks one user's mastery state for one card. A row is created
// lazily on the first recorded attempt or flag toggle; CreatedAt doubles as
// the first-reviewed timestamp.
type CardStat struct {
	gorm.Model
	UserID uint `gorm:"not null;uniqueIndex:idx_card_stats_user_card"`
	CardID uint `gorm:"not null;uniqueIndex:idx_card_stats_user_card"`
	Card   Card `gorm:"foreignKey:CardID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`

	Attempts      int     `gorm:"not null;default:0"`
	Correct       int     `gorm:"not null;default:0"`
	CurrentStreak int     `gorm:"not null;default:0"`
	BestStreak    int     `gorm:"not null;default:0"`
	EaseFactor    float64 `gorm:"not null;default:2.5"`
	IntervalDays  int     `gorm:"not null;default:0"`

	Flagged        bool       `gorm:"default:false"`
	FlaggedAt      *time.Time `gorm:"default:null"`
	LastReviewedAt *time.Time `gorm:"default:null"`
}
