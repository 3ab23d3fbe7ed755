package models

import "gorm.io/gorm"

const (
	UploadStatusPending    = "pending"
	UploadStatusProcessing = "processing"
	UploadStatusCompleted  = "completed"
	UploadStatusFailed     = "failed"
)

// Upload is a document a user submitted for AI card generation. Only
// text-bearing files are accepted; binary formats go through an external
// conversion pipeline before they reach this service. The extracted text is
// kept on the row so processing can be retried without re-uploading.
type Upload struct {
	gorm.Model
	PublicID string `gorm:"size:100;uniqueIndex"`
	UserID   uint   `gorm:"not null;index"`
	DeckID   *uint  `gorm:"default:null"`

	FileName string `gorm:"not null;size:255"`
	MimeType string `gorm:"size:100"`
	Status   string `gorm:"not null;size:20;default:pending"`
	Error    string `gorm:"size:1000"`

	Content        string `gorm:"type:text" json:"-"`
	CardsGenerated int    `gorm:"not null;default:0"`
}
