package models

import (
	"encoding/json"

	"gorm.io/gorm"
)

const (
	CardTypeFlashcard      = "flashcard"
	CardTypeMultipleChoice = "multiple_choice"
	CardTypeTrueFalse      = "true_false"
)

// ValidCardType reports whether t is one of the supported card types.
func ValidCardType(t string) bool {
	return t == CardTypeFlashcard || t == CardTypeMultipleChoice || t == CardTypeTrueFalse
}

// Card represents an individual card in a deck. Options holds the JSON-encoded
// answer choices for multiple choice cards; the correct answer is always the
// option at CorrectOptionIndex.
type Card struct {
	gorm.Model
	PublicID string `gorm:"size:100;uniqueIndex"`
	DeckID   uint   `gorm:"not null;index"`
	Deck     Deck   `gorm:"foreignKey:DeckID" json:"-"`

	Question string `gorm:"not null;size:5000"`
	Answer   string `gorm:"not null;size:5000"`
	CardType string `gorm:"not null;size:30;default:flashcard"`

	Options            string `gorm:"size:4000"`
	CorrectOptionIndex *int   `gorm:"default:null"`
	Tags               string `gorm:"size:500"`
	Position           int    `gorm:"default:0"`
}

// OptionList decodes the stored options. Returns nil for cards without options.
func (c *Card) OptionList() []string {
	if c.Options == "" {
		return nil
	}
	var opts []string
	if err := json.Unmarshal([]byte(c.Options), &opts); err != nil {
		return nil
	}
	return opts
}

// SetOptionList encodes opts into the Options column.
func (c *Card) SetOptionList(opts []string) {
	if len(opts) == 0 {
		c.Options = ""
		return
	}
	b, err := json.Marshal(opts)
	if err != nil {
		return
	}
	c.Options = string(b)
}
