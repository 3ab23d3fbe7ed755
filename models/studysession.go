package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	ModeFlashcard      = "flashcard"
	ModeMultipleChoice = "multiple_choice"
	ModeFlaggedOnly    = "flagged_only"
	ModeMixed          = "mixed"
)

// ValidStudyMode reports whether m is one of the supported study modes.
func ValidStudyMode(m string) bool {
	return m == ModeFlashcard || m == ModeMultipleChoice || m == ModeFlaggedOnly || m == ModeMixed
}

// StudySession is one timed study run over a deck. Sessions start ACTIVE and
// end COMPLETED; counters are only mutated while active. The PublicID is the
// only credential the unload beacon carries, so it must be unguessable.
type StudySession struct {
	gorm.Model
	PublicID string `gorm:"size:100;uniqueIndex"`
	UserID   uint   `gorm:"not null;index"`
	DeckID   uint   `gorm:"not null;index"`
	Deck     Deck   `gorm:"foreignKey:DeckID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`

	Mode      string    `gorm:"not null;size:30"`
	StartedAt time.Time `gorm:"not null"`

	CompletedAt     *time.Time `gorm:"default:null"`
	DurationSeconds *int       `gorm:"default:null"`
	CardsStudied    int        `gorm:"not null;default:0"`
	CardsCorrect    int        `gorm:"not null;default:0"`
	Completed       bool       `gorm:"default:false"`
}
