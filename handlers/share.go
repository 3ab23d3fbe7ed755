package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tomhardin/cardstack-api/config"
	"github.com/tomhardin/cardstack-api/models"
)

type shareLinkResponse struct {
	ShareToken string     `json:"share_token"`
	ShareURL   string     `json:"share_url"`
	ExpiresAt  *time.Time `json:"expires_at"`
	ViewCount  int        `json:"view_count"`
	CreatedAt  time.Time  `json:"created_at"`
}

func shareLink(share *models.DeckShare) shareLinkResponse {
	return shareLinkResponse{
		ShareToken: share.ShareToken,
		ShareURL:   config.Env.AppBaseURL + "/shared/" + share.ShareToken,
		ExpiresAt:  share.ExpiresAt,
		ViewCount:  share.ViewCount,
		CreatedAt:  share.CreatedAt,
	}
}

// POST /api/decks/{deckID}/share
//
// Reuses the deck's active share link when one exists instead of minting
// a new token on every call.
func (db *DBHandler) CreateShareLink(w http.ResponseWriter, r *http.Request) {
	deckID := r.PathValue("deckID")
	deck, user, err := db.deckForOwner(r, deckID)
	if err != nil {
		writeDeckAccessError(w, err)
		return
	}

	var body struct {
		ExpiresInDays *int `json:"expires_in_days"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
	}
	if body.ExpiresInDays != nil && *body.ExpiresInDays <= 0 {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "expires_in_days must be positive")
		return
	}

	now := time.Now()
	var existing models.DeckShare
	err = db.Where("deck_id = ? AND is_public = ? AND (expires_at IS NULL OR expires_at > ?)", deck.ID, true, now).
		First(&existing).Error
	if err == nil {
		writeJSON(w, http.StatusOK, shareLink(&existing))
		return
	}

	token, err := gonanoid.New()
	if err != nil {
		log.Printf("CreateShareLink: failed to generate token: %v", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to create share link")
		return
	}

	share := models.DeckShare{
		DeckID:     deck.ID,
		OwnerID:    user.ID,
		ShareToken: token,
		IsPublic:   true,
	}
	if body.ExpiresInDays != nil {
		expires := now.AddDate(0, 0, *body.ExpiresInDays)
		share.ExpiresAt = &expires
	}
	if err := db.Create(&share).Error; err != nil {
		log.Printf("CreateShareLink: failed to create share for deckID=%s: %v", deckID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to create share link")
		return
	}

	writeJSON(w, http.StatusCreated, shareLink(&share))
}

// GET /api/shared/{token}
//
// Public: no authentication required. Expired links look identical to
// missing ones.
func (db *DBHandler) GetSharedDeck(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	var share models.DeckShare
	if err := db.Where("share_token = ? AND is_public = ?", token, true).First(&share).Error; err != nil {
		writeError(w, http.StatusNotFound, codeNotFound, "Share link not found")
		return
	}
	if share.ExpiresAt != nil && share.ExpiresAt.Before(time.Now()) {
		writeError(w, http.StatusNotFound, codeNotFound, "Share link not found")
		return
	}

	var deck models.Deck
	if err := db.Preload("Cards", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position asc")
	}).First(&deck, share.DeckID).Error; err != nil {
		log.Printf("GetSharedDeck: deck missing for shareID=%d: %v", share.ID, err)
		writeError(w, http.StatusNotFound, codeNotFound, "Share link not found")
		return
	}

	var owner models.User
	db.Select("nickname").First(&owner, share.OwnerID)

	db.Model(&share).UpdateColumn("view_count", gorm.Expr("view_count + 1"))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deck":        deck,
		"owner":       owner.Nickname,
		"share_token": share.ShareToken,
		"view_count":  share.ViewCount + 1,
	})
}

// POST /api/shared/{token}/save
//
// Records that the caller saved a shared deck to their library. Saving
// the same deck twice is a no-op.
func (db *DBHandler) SaveSharedDeck(w http.ResponseWriter, r *http.Request) {
	user, ok := db.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized")
		return
	}
	token := r.PathValue("token")

	var share models.DeckShare
	if err := db.Where("share_token = ? AND is_public = ?", token, true).First(&share).Error; err != nil {
		writeError(w, http.StatusNotFound, codeNotFound, "Share link not found")
		return
	}
	if share.ExpiresAt != nil && share.ExpiresAt.Before(time.Now()) {
		writeError(w, http.StatusNotFound, codeNotFound, "Share link not found")
		return
	}
	if share.OwnerID == user.ID {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Cannot save your own deck")
		return
	}

	access := models.SharedDeckAccess{
		ShareID:    share.ID,
		UserID:     user.ID,
		DeckID:     share.DeckID,
		OwnerID:    share.OwnerID,
		AccessedAt: time.Now(),
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "share_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&access).Error
	if err != nil {
		log.Printf("SaveSharedDeck: failed to save access for token=%s userID=%d: %v", token, user.ID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to save deck")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// GET /api/shared/saved
func (db *DBHandler) ListSharedDecks(w http.ResponseWriter, r *http.Request) {
	user, ok := db.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized")
		return
	}

	var accesses []models.SharedDeckAccess
	if err := db.Where("user_id = ?", user.ID).Order("accessed_at desc").Find(&accesses).Error; err != nil {
		log.Printf("ListSharedDecks: failed to fetch accesses for userID=%d: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to fetch shared decks")
		return
	}

	type savedDeckView struct {
		DeckID        string     `json:"deck_id"`
		Name          string     `json:"name"`
		Description   string     `json:"description"`
		Owner         string     `json:"owner"`
		CardCount     int64      `json:"card_count"`
		SavedAt       time.Time  `json:"saved_at"`
		LastStudiedAt *time.Time `json:"last_studied_at"`
	}

	views := make([]savedDeckView, 0, len(accesses))
	for i := range accesses {
		var deck models.Deck
		if err := db.First(&deck, accesses[i].DeckID).Error; err != nil {
			// Deck deleted since it was saved; skip the stale access row.
			continue
		}
		var owner models.User
		db.Select("nickname").First(&owner, accesses[i].OwnerID)
		var cardCount int64
		db.Model(&models.Card{}).Where("deck_id = ?", deck.ID).Count(&cardCount)
		views = append(views, savedDeckView{
			DeckID:        deck.PublicID,
			Name:          deck.Name,
			Description:   deck.Description,
			Owner:         owner.Nickname,
			CardCount:     cardCount,
			SavedAt:       accesses[i].AccessedAt,
			LastStudiedAt: accesses[i].LastStudiedAt,
		})
	}

	writeJSON(w, http.StatusOK, views)
}
