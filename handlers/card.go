package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/tomhardin/cardstack-api/models"
)

type cardRequest struct {
	Question           string   `json:"question"`
	Answer             string   `json:"answer"`
	CardType           string   `json:"cardType"`
	Options            []string `json:"options"`
	CorrectOptionIndex *int     `json:"correctOptionIndex"`
	Tags               string   `json:"tags"`
	Position           *int     `json:"position"`
}

func (req *cardRequest) validate() (string, bool) {
	if req.Question == "" || req.Answer == "" {
		return "Question and answer are required", false
	}
	if req.CardType == "" {
		req.CardType = models.CardTypeFlashcard
	}
	if !models.ValidCardType(req.CardType) {
		return "Invalid card type", false
	}
	if req.CardType == models.CardTypeMultipleChoice && len(req.Options) < 2 {
		return "Multiple choice cards must have at least 2 options", false
	}
	return "", true
}

// GET /api/decks/{deckID}/cards
func (db *DBHandler) GetCardsForDeck(w http.ResponseWriter, r *http.Request) {
	deckID := r.PathValue("deckID")

	var deck models.Deck
	if err := db.Preload("User").Where("public_id = ?", deckID).First(&deck).Error; err != nil {
		writeError(w, http.StatusNotFound, codeNotFound, "Deck not found or access denied")
		return
	}

	if !deck.IsPublic {
		user, ok := db.currentUser(r)
		if !ok || deck.UserID != user.ID {
			writeError(w, http.StatusNotFound, codeNotFound, "Deck not found or access denied")
			return
		}
	}

	var cards []models.Card
	if err := db.Where("deck_id = ?", deck.ID).Order("position asc").Find(&cards).Error; err != nil {
		log.Printf("GetCardsForDeck: failed to fetch cards for deckID=%s: %v", deckID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to fetch cards")
		return
	}
	if len(cards) == 0 {
		cards = []models.Card{}
	}

	writeJSON(w, http.StatusOK, cards)
}

// POST /api/decks/{deckID}/cards
func (db *DBHandler) CreateCard(w http.ResponseWriter, r *http.Request) {
	deckID := r.PathValue("deckID")
	deck, _, err := db.deckForOwner(r, deckID)
	if err != nil {
		writeDeckAccessError(w, err)
		return
	}

	var req cardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid request body")
		return
	}
	if msg, ok := req.validate(); !ok {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, msg)
		return
	}

	publicID, err := gonanoid.New()
	if err != nil {
		log.Printf("CreateCard: failed to generate publicID: %v", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	position := 0
	if req.Position != nil {
		position = *req.Position
	} else {
		var count int64
		db.Model(&models.Card{}).Where("deck_id = ?", deck.ID).Count(&count)
		position = int(count)
	}

	card := models.Card{
		PublicID:           publicID,
		DeckID:             deck.ID,
		Question:           req.Question,
		Answer:             req.Answer,
		CardType:           req.CardType,
		CorrectOptionIndex: req.CorrectOptionIndex,
		Tags:               req.Tags,
		Position:           position,
	}
	card.SetOptionList(req.Options)

	if err := db.Create(&card).Error; err != nil {
		log.Printf("CreateCard: failed to create card for deckID=%s: %v", deckID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to create card")
		return
	}

	writeJSON(w, http.StatusCreated, card)
}

// GET /api/cards/{cardID}
func (db *DBHandler) GetCardByID(w http.ResponseWriter, r *http.Request) {
	cardID := r.PathValue("cardID")

	card, ok := db.visibleCard(r, cardID)
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "Card not found or access denied")
		return
	}

	writeJSON(w, http.StatusOK, card)
}

// PUT /api/cards/{cardID}
func (db *DBHandler) UpdateCardByID(w http.ResponseWriter, r *http.Request) {
	cardID := r.PathValue("cardID")

	card, ok := db.ownedCard(r, cardID)
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "Card not found or access denied")
		return
	}

	var req cardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid request body")
		return
	}
	if msg, ok := req.validate(); !ok {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, msg)
		return
	}

	card.Question = req.Question
	card.Answer = req.Answer
	card.CardType = req.CardType
	card.CorrectOptionIndex = req.CorrectOptionIndex
	card.Tags = req.Tags
	if req.Position != nil {
		card.Position = *req.Position
	}
	card.SetOptionList(req.Options)

	if err := db.Save(card).Error; err != nil {
		log.Printf("UpdateCardByID: failed to update cardID=%s: %v", cardID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to update card")
		return
	}

	writeJSON(w, http.StatusOK, card)
}

// DELETE /api/cards/{cardID}
//
// The card's stat rows go with it; interaction records are kept as audit
// history until the whole deck is removed.
func (db *DBHandler) DeleteCardByID(w http.ResponseWriter, r *http.Request) {
	cardID := r.PathValue("cardID")

	card, ok := db.ownedCard(r, cardID)
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "Card not found or access denied")
		return
	}

	if err := db.Where("card_id = ?", card.ID).Delete(&models.CardStat{}).Error; err != nil {
		log.Printf("DeleteCardByID: failed to delete stats for cardID=%s: %v", cardID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to delete card")
		return
	}
	if err := db.Delete(card).Error; err != nil {
		log.Printf("DeleteCardByID: failed to delete cardID=%s: %v", cardID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to delete card")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ownedCard fetches a card by public ID when the caller owns its deck.
func (db *DBHandler) ownedCard(r *http.Request, publicID string) (*models.Card, bool) {
	user, ok := db.currentUser(r)
	if !ok {
		return nil, false
	}
	var card models.Card
	if err := db.Joins("Deck").Where("cards.public_id = ?", publicID).First(&card).Error; err != nil {
		return nil, false
	}
	if card.Deck.UserID != user.ID {
		return nil, false
	}
	return &card, true
}

// visibleCard fetches a card the caller owns or that sits in a public deck.
func (db *DBHandler) visibleCard(r *http.Request, publicID string) (*models.Card, bool) {
	var card models.Card
	if err := db.Joins("Deck").Where("cards.public_id = ?", publicID).First(&card).Error; err != nil {
		return nil, false
	}
	if card.Deck.IsPublic {
		return &card, true
	}
	user, ok := db.currentUser(r)
	if !ok || card.Deck.UserID != user.ID {
		return nil, false
	}
	return &card, true
}
