package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"gorm.io/gorm"

	"github.com/tomhardin/cardstack-api/models"
	"github.com/tomhardin/cardstack-api/srs"
	"github.com/tomhardin/cardstack-api/utils"
)

// GET /api/decks
func (db *DBHandler) GetDecks(w http.ResponseWriter, r *http.Request) {
	user, ok := db.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized")
		return
	}

	var decks []models.Deck
	if err := db.Preload("Cards").Where("user_id = ?", user.ID).Order("updated_at desc").Find(&decks).Error; err != nil {
		log.Printf("GetDecks: failed to fetch decks for userID=%d: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to fetch decks")
		return
	}
	if len(decks) == 0 {
		decks = []models.Deck{}
	}

	writeJSON(w, http.StatusOK, decks)
}

// POST /api/decks
func (db *DBHandler) CreateDeck(w http.ResponseWriter, r *http.Request) {
	user, ok := db.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized")
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		IsPublic    bool   `json:"isPublic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Deck name is required")
		return
	}

	publicID, err := gonanoid.New()
	if err != nil {
		log.Printf("CreateDeck: failed to generate publicID: %v", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	deck := models.Deck{
		PublicID:    publicID,
		Name:        req.Name,
		Description: req.Description,
		UserID:      user.ID,
		IsPublic:    req.IsPublic,
	}
	if err := db.Create(&deck).Error; err != nil {
		log.Printf("CreateDeck: failed to create deck: %v", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to create deck")
		return
	}

	log.Printf("CreateDeck: created deck publicID=%s for userID=%d", publicID, user.ID)
	writeJSON(w, http.StatusCreated, deck)
}

// GET /api/decks/{deckID}
func (db *DBHandler) GetDeckByID(w http.ResponseWriter, r *http.Request) {
	deckID := r.PathValue("deckID")

	var deck models.Deck
	if err := db.Preload("User").Preload("Cards", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("cards.position asc")
	}).Where("public_id = ?", deckID).First(&deck).Error; err != nil {
		writeError(w, http.StatusNotFound, codeNotFound, "Deck not found or access denied")
		return
	}

	subject, ok := utils.GetSubject(r)
	isOwner := ok && deck.User.Subject == subject

	if !deck.IsPublic && !isOwner {
		writeError(w, http.StatusNotFound, codeNotFound, "Deck not found or access denied")
		return
	}

	type DeckResponse struct {
		models.Deck
		IsOwner   bool `json:"isOwner"`
		CardCount int  `json:"cardCount"`
	}
	writeJSON(w, http.StatusOK, DeckResponse{
		Deck:      deck,
		IsOwner:   isOwner,
		CardCount: len(deck.Cards),
	})
}

// PUT /api/decks/{deckID}
func (db *DBHandler) UpdateDeckByID(w http.ResponseWriter, r *http.Request) {
	deckID := r.PathValue("deckID")
	deck, _, err := db.deckForOwner(r, deckID)
	if err != nil {
		writeDeckAccessError(w, err)
		return
	}

	var req struct {
		Name        *string `json:"name,omitempty"`
		Description *string `json:"description,omitempty"`
		IsPublic    *bool   `json:"isPublic,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid request body")
		return
	}

	updated := false
	if req.Name != nil && *req.Name != "" && deck.Name != *req.Name {
		deck.Name = *req.Name
		updated = true
	}
	if req.Description != nil && deck.Description != *req.Description {
		deck.Description = *req.Description
		updated = true
	}
	if req.IsPublic != nil && deck.IsPublic != *req.IsPublic {
		deck.IsPublic = *req.IsPublic
		updated = true
	}

	if updated {
		if err := db.Save(deck).Error; err != nil {
			log.Printf("UpdateDeckByID: failed to update deckID=%s: %v", deckID, err)
			writeError(w, http.StatusInternalServerError, codeInternal, "Failed to update deck")
			return
		}
	}

	writeJSON(w, http.StatusOK, deck)
}

// DELETE /api/decks/{deckID}
//
// Removing a deck cascades to its cards, their stats and interactions, the
// deck's sessions, and any share links.
func (db *DBHandler) DeleteDeckByID(w http.ResponseWriter, r *http.Request) {
	deckID := r.PathValue("deckID")
	deck, _, err := db.deckForOwner(r, deckID)
	if err != nil {
		writeDeckAccessError(w, err)
		return
	}

	tx := db.Begin()
	if tx.Error != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, "Could not begin transaction")
		return
	}

	var cardIDs []uint
	if err := tx.Model(&models.Card{}).Where("deck_id = ?", deck.ID).Pluck("id", &cardIDs).Error; err != nil {
		tx.Rollback()
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to delete deck")
		return
	}

	if len(cardIDs) > 0 {
		if err := tx.Where("card_id IN ?", cardIDs).Delete(&models.CardStat{}).Error; err != nil {
			tx.Rollback()
			writeError(w, http.StatusInternalServerError, codeInternal, "Failed to delete deck")
			return
		}
		if err := tx.Where("card_id IN ?", cardIDs).Delete(&models.CardInteraction{}).Error; err != nil {
			tx.Rollback()
			writeError(w, http.StatusInternalServerError, codeInternal, "Failed to delete deck")
			return
		}
	}

	for _, m := range []interface{}{&models.Card{}, &models.StudySession{}, &models.DeckShare{}, &models.SharedDeckAccess{}} {
		if err := tx.Where("deck_id = ?", deck.ID).Delete(m).Error; err != nil {
			tx.Rollback()
			writeError(w, http.StatusInternalServerError, codeInternal, "Failed to delete deck")
			return
		}
	}
	if err := tx.Delete(deck).Error; err != nil {
		tx.Rollback()
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to delete deck")
		return
	}

	if err := tx.Commit().Error; err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, "Could not commit transaction")
		return
	}

	log.Printf("DeleteDeckByID: deleted deckID=%s", deckID)
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/decks/{deckID}/study?mode=flashcard|multiple_choice|flagged_only|mixed
//
// Returns the deck's cards filtered by study mode, with multiple choice
// options shuffled server-side so clients never see a stable answer slot.
func (db *DBHandler) GetStudyQueue(w http.ResponseWriter, r *http.Request) {
	deckID := r.PathValue("deckID")
	user, ok := db.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized")
		return
	}

	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = models.ModeFlashcard
	}
	if !models.ValidStudyMode(mode) {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid study mode")
		return
	}

	var deck models.Deck
	if err := db.Where("public_id = ?", deckID).First(&deck).Error; err != nil {
		writeError(w, http.StatusNotFound, codeNotFound, "Deck not found or access denied")
		return
	}
	if deck.UserID != user.ID && !deck.IsPublic {
		writeError(w, http.StatusNotFound, codeNotFound, "Deck not found or access denied")
		return
	}

	query := db.Where("cards.deck_id = ?", deck.ID).Order("cards.position asc")
	switch mode {
	case models.ModeFlaggedOnly:
		query = query.Joins(
			"JOIN card_stats ON card_stats.card_id = cards.id AND card_stats.user_id = ? AND card_stats.flagged = ? AND card_stats.deleted_at IS NULL",
			user.ID, true,
		)
	case models.ModeMultipleChoice:
		query = query.Where("cards.card_type = ?", models.CardTypeMultipleChoice)
	}

	var cards []models.Card
	if err := query.Find(&cards).Error; err != nil {
		log.Printf("GetStudyQueue: failed to fetch cards for deckID=%s: %v", deckID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to fetch cards")
		return
	}

	type StudyCard struct {
		models.Card
		ShuffledOptions []string `json:"shuffledOptions,omitempty"`
		CorrectOption   int      `json:"correctOption"`
	}

	queue := make([]StudyCard, 0, len(cards))
	for i := range cards {
		entry := StudyCard{Card: cards[i]}
		if opts := cards[i].OptionList(); len(opts) > 0 {
			correct := 0
			if cards[i].CorrectOptionIndex != nil {
				correct = *cards[i].CorrectOptionIndex
			}
			entry.ShuffledOptions, entry.CorrectOption = srs.ShuffleOptions(opts, correct)
		}
		queue = append(queue, entry)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deck_id": deck.PublicID,
		"mode":    mode,
		"cards":   queue,
	})
}

func writeDeckAccessError(w http.ResponseWriter, err error) {
	if err == errUnauthorized {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized")
		return
	}
	writeError(w, http.StatusNotFound, codeNotFound, "Deck not found or access denied")
}
