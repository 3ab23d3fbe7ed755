package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/tomhardin/cardstack-api/ai"
	"github.com/tomhardin/cardstack-api/models"
)

const maxUploadBytes = 5 << 20

// Text-bearing formats only. PDFs and Office documents need a conversion
// pipeline this service does not run; clients extract text before upload.
var allowedUploadExtensions = map[string]bool{
	".txt": true,
	".md":  true,
	".csv": true,
}

var validate = validator.New()

var errNoUsableCards = errors.New("generation produced no usable cards")

type uploadResponse struct {
	UploadID       string  `json:"upload_id"`
	FileName       string  `json:"file_name"`
	Status         string  `json:"status"`
	Error          string  `json:"error,omitempty"`
	DeckID         *string `json:"deck_id"`
	CardsGenerated int     `json:"cards_generated"`
}

func (db *DBHandler) uploadView(upload *models.Upload) uploadResponse {
	resp := uploadResponse{
		UploadID:       upload.PublicID,
		FileName:       upload.FileName,
		Status:         upload.Status,
		Error:          upload.Error,
		CardsGenerated: upload.CardsGenerated,
	}
	if upload.DeckID != nil {
		var deck models.Deck
		if err := db.Select("public_id").First(&deck, *upload.DeckID).Error; err == nil {
			resp.DeckID = &deck.PublicID
		}
	}
	return resp
}

// POST /api/uploads
func (db *DBHandler) CreateUpload(w http.ResponseWriter, r *http.Request) {
	user, ok := db.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Expected multipart form with a file field")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Missing file field")
		return
	}
	defer file.Close()

	extIdx := strings.LastIndex(header.Filename, ".")
	extension := ""
	if extIdx >= 0 {
		extension = strings.ToLower(header.Filename[extIdx:])
	}
	if !allowedUploadExtensions[extension] {
		writeError(w, http.StatusBadRequest, codeInvalidRequest,
			"Unsupported file type; upload plain text (.txt, .md, .csv)")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Failed to read file")
		return
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "File is empty")
		return
	}

	publicID, err := gonanoid.New()
	if err != nil {
		log.Printf("CreateUpload: failed to generate ID: %v", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to create upload")
		return
	}

	upload := models.Upload{
		PublicID: publicID,
		UserID:   user.ID,
		FileName: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Status:   models.UploadStatusPending,
		Content:  content,
	}
	if err := db.Create(&upload).Error; err != nil {
		log.Printf("CreateUpload: failed to save upload for userID=%d: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to create upload")
		return
	}

	writeJSON(w, http.StatusCreated, db.uploadView(&upload))
}

// GET /api/uploads/{uploadID}
func (db *DBHandler) GetUpload(w http.ResponseWriter, r *http.Request) {
	user, ok := db.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized")
		return
	}

	var upload models.Upload
	if err := db.Where("public_id = ? AND user_id = ?", r.PathValue("uploadID"), user.ID).First(&upload).Error; err != nil {
		writeError(w, http.StatusNotFound, codeNotFound, "Upload not found")
		return
	}
	writeJSON(w, http.StatusOK, db.uploadView(&upload))
}

// POST /api/uploads/{uploadID}/process
//
// Generates a deck from the upload's text. Runs synchronously; status
// moves pending -> processing -> completed or failed so clients polling
// GetUpload see the terminal state either way.
func (db *DBHandler) ProcessUpload(w http.ResponseWriter, r *http.Request) {
	user, ok := db.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized")
		return
	}
	if db.AI == nil {
		writeError(w, http.StatusServiceUnavailable, codeInternal, "Card generation is not configured")
		return
	}

	var upload models.Upload
	if err := db.Where("public_id = ? AND user_id = ?", r.PathValue("uploadID"), user.ID).First(&upload).Error; err != nil {
		writeError(w, http.StatusNotFound, codeNotFound, "Upload not found")
		return
	}
	if upload.Status == models.UploadStatusProcessing {
		writeError(w, http.StatusConflict, codeConflict, "Upload is already being processed")
		return
	}
	if upload.Status == models.UploadStatusCompleted {
		writeJSON(w, http.StatusOK, db.uploadView(&upload))
		return
	}

	db.Model(&upload).Updates(map[string]interface{}{"status": models.UploadStatusProcessing, "error": ""})

	deckName := upload.FileName
	if i := strings.LastIndex(deckName, "."); i > 0 {
		deckName = deckName[:i]
	}
	deck, count, err := db.generateDeck(r, user, deckName, "", upload.Content)
	if err != nil {
		log.Printf("ProcessUpload: generation failed for uploadID=%s: %v", upload.PublicID, err)
		db.Model(&upload).Updates(map[string]interface{}{
			"status": models.UploadStatusFailed,
			"error":  err.Error(),
		})
		upload.Status = models.UploadStatusFailed
		upload.Error = err.Error()
		writeJSON(w, http.StatusBadGateway, db.uploadView(&upload))
		return
	}

	db.Model(&upload).Updates(map[string]interface{}{
		"status":          models.UploadStatusCompleted,
		"deck_id":         deck.ID,
		"cards_generated": count,
	})
	upload.Status = models.UploadStatusCompleted
	upload.DeckID = &deck.ID
	upload.CardsGenerated = count
	writeJSON(w, http.StatusOK, db.uploadView(&upload))
}

type generateRequest struct {
	Notes       string `json:"notes" validate:"required,min=50"`
	DeckName    string `json:"deckName" validate:"required"`
	Description string `json:"description"`
}

// POST /api/generate
//
// Generates a deck directly from pasted notes, no upload row involved.
func (db *DBHandler) GenerateFromNotes(w http.ResponseWriter, r *http.Request) {
	user, ok := db.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized")
		return
	}
	if db.AI == nil {
		writeError(w, http.StatusServiceUnavailable, codeInternal, "Card generation is not configured")
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest,
			"notes (at least 50 characters) and deckName are required")
		return
	}

	deck, count, err := db.generateDeck(r, user, req.DeckName, req.Description, req.Notes)
	if err != nil {
		log.Printf("GenerateFromNotes: generation failed for userID=%d: %v", user.ID, err)
		writeError(w, http.StatusBadGateway, codeInternal, "Card generation failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"deck_id":         deck.PublicID,
		"name":            deck.Name,
		"cards_generated": count,
	})
}

// generateDeck runs the LLM over content and persists the resulting deck.
func (db *DBHandler) generateDeck(r *http.Request, user *models.User, name, description, content string) (*models.Deck, int, error) {
	generated, err := db.AI.GenerateCards(r.Context(), content)
	if err != nil {
		return nil, 0, err
	}

	publicID, err := gonanoid.New()
	if err != nil {
		return nil, 0, err
	}
	deck := models.Deck{
		PublicID:    publicID,
		Name:        name,
		Description: description,
		UserID:      user.ID,
	}
	if err := db.Create(&deck).Error; err != nil {
		return nil, 0, err
	}

	inserted := 0
	for _, gc := range generated {
		card, buildErr := cardFromGenerated(deck.ID, inserted, gc)
		if buildErr != nil {
			continue
		}
		if err := db.Create(card).Error; err != nil {
			log.Printf("generateDeck: failed to insert card for deckID=%s: %v", deck.PublicID, err)
			continue
		}
		inserted++
	}
	if inserted == 0 {
		return nil, 0, errNoUsableCards
	}
	return &deck, inserted, nil
}

func cardFromGenerated(deckID uint, position int, gc ai.GeneratedCard) (*models.Card, error) {
	publicID, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	cardType := gc.Type
	if !models.ValidCardType(cardType) {
		cardType = models.CardTypeMultipleChoice
	}
	card := &models.Card{
		PublicID: publicID,
		DeckID:   deckID,
		Question: gc.Question,
		Answer:   gc.Answer,
		CardType: cardType,
		Tags:     strings.Join(gc.Tags, ","),
		Position: position,
	}
	if len(gc.Options) > 0 {
		card.SetOptionList(gc.Options)
		zero := 0
		card.CorrectOptionIndex = &zero
	}
	return card, nil
}
