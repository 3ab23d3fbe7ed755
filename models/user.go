package models

import "gorm.io/gorm"

// User represents a user in the system. Subject is the identity issued by
// the auth provider (Auth0 "sub") or "local|<nickname>" for local accounts.
type User struct {
	gorm.Model
	Subject      string `gorm:"uniqueIndex;not null;size:200"`
	Nickname     string `gorm:"unique;not null;size:100"`
	PasswordHash string `gorm:"size:100" json:"-"`
	Decks        []Deck `gorm:"foreignKey:UserID"`
}
