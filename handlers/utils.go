package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"gorm.io/gorm"

	"github.com/tomhardin/cardstack-api/ai"
	"github.com/tomhardin/cardstack-api/models"
	"github.com/tomhardin/cardstack-api/utils"
)

// Error categories returned in the "code" field of error payloads.
const (
	codeInvalidRequest = "invalid_request"
	codeUnauthorized   = "unauthorized"
	codeNotFound       = "not_found"
	codeConflict       = "conflict"
	codeInternal       = "internal"
)

type DBHandler struct {
	*gorm.DB

	// AI is nil when no LLM provider is configured; generation endpoints
	// report 503 in that case.
	AI *ai.Generator
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// currentUser resolves the request identity to its users row.
func (db *DBHandler) currentUser(r *http.Request) (*models.User, bool) {
	subject, ok := utils.GetSubject(r)
	if !ok {
		return nil, false
	}
	var user models.User
	if err := db.Where("subject = ?", subject).First(&user).Error; err != nil {
		return nil, false
	}
	return &user, true
}

// deckForOwner fetches a deck by public ID and verifies the caller owns it.
func (db *DBHandler) deckForOwner(r *http.Request, publicID string) (*models.Deck, *models.User, error) {
	user, ok := db.currentUser(r)
	if !ok {
		return nil, nil, errUnauthorized
	}
	var deck models.Deck
	if err := db.Where("public_id = ? AND user_id = ?", publicID, user.ID).First(&deck).Error; err != nil {
		return nil, user, errNotFound
	}
	return &deck, user, nil
}

var (
	errUnauthorized = errors.New("unauthorized")
	errNotFound     = errors.New("not found or access denied")
)
