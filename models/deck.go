package models

import (
	"time"

	"gorm.io/gorm"
)

// Deck represents a collection of cards
type Deck struct {
	gorm.Model
	PublicID    string `gorm:"size:100;uniqueIndex"`
	Name        string `gorm:"not null;size:100"`
	Description string `gorm:"size:500"`
	UserID      uint   `gorm:"not null;index"`
	User        User   `gorm:"foreignKey:UserID" json:"-"`
	IsPublic    bool   `gorm:"default:false"`

	Cards []Card `gorm:"foreignKey:DeckID"`

	LastStudied *time.Time `gorm:"default:null"`
}
