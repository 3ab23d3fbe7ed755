package models

import (
	"time"

	"gorm.io/gorm"
)

// DeckShare is a shareable link for a deck. The token is the only thing a
// visitor needs, so tokens come from the same nanoid generator as public IDs.
type DeckShare struct {
	gorm.Model
	DeckID  uint `gorm:"not null;index"`
	Deck    Deck `gorm:"foreignKey:DeckID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	OwnerID uint `gorm:"not null;index"`

	ShareToken string     `gorm:"not null;size:100;uniqueIndex"`
	IsPublic   bool       `gorm:"default:true"`
	ExpiresAt  *time.Time `gorm:"default:null"`
	ViewCount  int        `gorm:"not null;default:0"`
}

// SharedDeckAccess records that a user saved someone else's shared deck to
// their own collection.
type SharedDeckAccess struct {
	gorm.Model
	ShareID uint `gorm:"not null;uniqueIndex:idx_share_access_user"`
	UserID  uint `gorm:"not null;uniqueIndex:idx_share_access_user"`
	DeckID  uint `gorm:"not null;index"`
	OwnerID uint `gorm:"not null"`

	AccessedAt    time.Time  `gorm:"not null"`
	LastStudiedAt *time.Time `gorm:"default:null"`
}
