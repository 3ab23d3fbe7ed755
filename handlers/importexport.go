package handlers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/tomhardin/cardstack-api/models"
	"github.com/tomhardin/cardstack-api/srs"
)

const (
	maxImportCards     = 1000
	maxImportFieldLen  = 5000
	maxImportErrors    = 10
	maxImportBodyBytes = 10 << 20
)

type exportCard struct {
	Question           string   `json:"question"`
	Answer             string   `json:"answer"`
	CardType           string   `json:"card_type"`
	Options            []string `json:"options,omitempty"`
	CorrectOptionIndex *int     `json:"correct_option_index,omitempty"`
	Tags               string   `json:"tags,omitempty"`

	Attempts *int `json:"attempts,omitempty"`
	Correct  *int `json:"correct,omitempty"`
	Accuracy *int `json:"accuracy,omitempty"`
}

type exportPayload struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	ExportedAt  time.Time    `json:"exported_at"`
	Cards       []exportCard `json:"cards"`
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func exportFilename(name, ext string) string {
	safe := unsafeFilenameChars.ReplaceAllString(name, "_")
	safe = strings.Trim(safe, "_")
	if safe == "" {
		safe = "deck"
	}
	return safe + "." + ext
}

// GET /api/decks/{deckID}/export?format=json|csv&includeStats=true
func (db *DBHandler) ExportDeck(w http.ResponseWriter, r *http.Request) {
	deckID := r.PathValue("deckID")
	deck, user, err := db.deckForOwner(r, deckID)
	if err != nil {
		writeDeckAccessError(w, err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "format must be json or csv")
		return
	}
	includeStats := r.URL.Query().Get("includeStats") == "true"

	var cards []models.Card
	if err := db.Where("deck_id = ?", deck.ID).Order("position asc").Find(&cards).Error; err != nil {
		log.Printf("ExportDeck: failed to fetch cards for deckID=%s: %v", deckID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to export deck")
		return
	}

	statByCardID := map[uint]*models.CardStat{}
	if includeStats && len(cards) > 0 {
		cardIDs := make([]uint, 0, len(cards))
		for i := range cards {
			cardIDs = append(cardIDs, cards[i].ID)
		}
		var stats []models.CardStat
		if err := db.Where("user_id = ? AND card_id IN ?", user.ID, cardIDs).Find(&stats).Error; err == nil {
			for i := range stats {
				statByCardID[stats[i].CardID] = &stats[i]
			}
		}
	}

	exported := make([]exportCard, 0, len(cards))
	for i := range cards {
		ec := exportCard{
			Question:           cards[i].Question,
			Answer:             cards[i].Answer,
			CardType:           cards[i].CardType,
			Options:            cards[i].OptionList(),
			CorrectOptionIndex: cards[i].CorrectOptionIndex,
			Tags:               cards[i].Tags,
		}
		if stat := statByCardID[cards[i].ID]; stat != nil {
			attempts, correct := stat.Attempts, stat.Correct
			accuracy := srs.Accuracy(correct, attempts)
			ec.Attempts, ec.Correct, ec.Accuracy = &attempts, &correct, &accuracy
		}
		exported = append(exported, ec)
	}

	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="`+exportFilename(deck.Name, "csv")+`"`)
		cw := csv.NewWriter(w)
		header := []string{"question", "answer", "card_type", "options", "correct_option_index", "tags"}
		if includeStats {
			header = append(header, "attempts", "correct", "accuracy")
		}
		cw.Write(header)
		for _, ec := range exported {
			row := []string{
				ec.Question,
				ec.Answer,
				ec.CardType,
				strings.Join(ec.Options, "|"),
				"",
				ec.Tags,
			}
			if ec.CorrectOptionIndex != nil {
				row[4] = strconv.Itoa(*ec.CorrectOptionIndex)
			}
			if includeStats {
				attempts, correct, accuracy := "0", "0", "0"
				if ec.Attempts != nil {
					attempts = strconv.Itoa(*ec.Attempts)
					correct = strconv.Itoa(*ec.Correct)
					accuracy = strconv.Itoa(*ec.Accuracy)
				}
				row = append(row, attempts, correct, accuracy)
			}
			cw.Write(row)
		}
		cw.Flush()
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFilename(deck.Name, "json")+`"`)
	writeJSON(w, http.StatusOK, exportPayload{
		Name:        deck.Name,
		Description: deck.Description,
		ExportedAt:  time.Now(),
		Cards:       exported,
	})
}

type importCard struct {
	Question           string   `json:"question"`
	Answer             string   `json:"answer"`
	CardType           string   `json:"card_type"`
	Options            []string `json:"options"`
	CorrectOptionIndex *int     `json:"correct_option_index"`
	Tags               string   `json:"tags"`
}

// POST /api/decks/import
//
// Accepts a multipart upload with a "file" field (JSON or CSV) plus an
// optional "name" field overriding the deck name.
func (db *DBHandler) ImportDeck(w http.ResponseWriter, r *http.Request) {
	user, ok := db.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxImportBodyBytes); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Expected multipart form with a file field")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImportBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Failed to read file")
		return
	}

	var (
		deckName    = r.FormValue("name")
		description string
		cards       []importCard
	)
	switch {
	case strings.HasSuffix(strings.ToLower(header.Filename), ".csv"):
		cards, err = parseCSVImport(data)
	default:
		var name, desc string
		cards, name, desc, err = parseJSONImport(data)
		if deckName == "" {
			deckName = name
		}
		description = desc
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	if deckName == "" {
		base := header.Filename
		if i := strings.LastIndex(base, "."); i > 0 {
			base = base[:i]
		}
		deckName = base
	}
	if deckName == "" {
		deckName = "Imported Deck"
	}

	if len(cards) == 0 {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "File contains no cards")
		return
	}
	if len(cards) > maxImportCards {
		writeError(w, http.StatusBadRequest, codeInvalidRequest,
			fmt.Sprintf("File contains %d cards; the limit is %d", len(cards), maxImportCards))
		return
	}

	valid, importErrors := validateImportCards(cards)
	if len(valid) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  "No valid cards in file",
			"code":   codeInvalidRequest,
			"errors": importErrors,
		})
		return
	}

	publicID, err := gonanoid.New()
	if err != nil {
		log.Printf("ImportDeck: failed to generate deck ID: %v", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to import deck")
		return
	}
	deck := models.Deck{
		PublicID:    publicID,
		Name:        deckName,
		Description: description,
		UserID:      user.ID,
	}
	if err := db.Create(&deck).Error; err != nil {
		log.Printf("ImportDeck: failed to create deck for userID=%d: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to import deck")
		return
	}

	// Insert one row at a time: card rows mix null and non-null
	// correct_option_index, which a multi-row insert cannot express on
	// every driver.
	inserted, failed := 0, 0
	for i := range valid {
		cardID, idErr := gonanoid.New()
		if idErr != nil {
			failed++
			continue
		}
		card := models.Card{
			PublicID:           cardID,
			DeckID:             deck.ID,
			Question:           valid[i].Question,
			Answer:             valid[i].Answer,
			CardType:           valid[i].CardType,
			CorrectOptionIndex: valid[i].CorrectOptionIndex,
			Tags:               valid[i].Tags,
			Position:           inserted,
		}
		card.SetOptionList(valid[i].Options)
		if err := db.Create(&card).Error; err != nil {
			log.Printf("ImportDeck: failed to insert card for deckID=%s: %v", deck.PublicID, err)
			failed++
			continue
		}
		inserted++
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"deck_id":  deck.PublicID,
		"name":     deck.Name,
		"inserted": inserted,
		"failed":   failed,
		"errors":   importErrors,
	})
}

// parseJSONImport accepts either a full export payload or a bare card array.
func parseJSONImport(data []byte) ([]importCard, string, string, error) {
	var payload struct {
		Name        string       `json:"name"`
		Description string       `json:"description"`
		Cards       []importCard `json:"cards"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Cards != nil {
		return payload.Cards, payload.Name, payload.Description, nil
	}
	var bare []importCard
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare, "", "", nil
	}
	return nil, "", "", fmt.Errorf("file is not valid JSON")
}

// parseCSVImport maps columns by header name. Options may appear as a
// single pipe-separated "options" column or as distractor columns
// (option_1..option_n) folded in after the answer, answer first.
func parseCSVImport(data []byte) ([]importCard, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("file is not valid CSV: %v", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("CSV must have a header row and at least one card")
	}

	col := map[string]int{}
	distractorCols := []int{}
	for i, name := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(name))
		if strings.HasPrefix(key, "option_") || strings.HasPrefix(key, "distractor") {
			distractorCols = append(distractorCols, i)
			continue
		}
		col[key] = i
	}
	questionCol, ok := col["question"]
	if !ok {
		return nil, fmt.Errorf("CSV is missing a question column")
	}
	answerCol, ok := col["answer"]
	if !ok {
		return nil, fmt.Errorf("CSV is missing an answer column")
	}

	field := func(row []string, idx int, ok bool) string {
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	cards := make([]importCard, 0, len(rows)-1)
	for _, row := range rows[1:] {
		card := importCard{
			Question: field(row, questionCol, true),
			Answer:   field(row, answerCol, true),
		}
		typeCol, hasType := col["card_type"]
		card.CardType = field(row, typeCol, hasType)
		tagsCol, hasTags := col["tags"]
		card.Tags = field(row, tagsCol, hasTags)

		optionsCol, hasOptions := col["options"]
		if raw := field(row, optionsCol, hasOptions); raw != "" {
			card.Options = strings.Split(raw, "|")
			idxCol, hasIdx := col["correct_option_index"]
			if rawIdx := field(row, idxCol, hasIdx); rawIdx != "" {
				if idx, convErr := strconv.Atoi(rawIdx); convErr == nil {
					card.CorrectOptionIndex = &idx
				}
			}
		} else {
			// Distractor columns: fold into options with the answer first.
			options := []string{}
			for _, dc := range distractorCols {
				if v := field(row, dc, true); v != "" {
					options = append(options, v)
				}
			}
			if len(options) > 0 {
				card.Options = append([]string{card.Answer}, options...)
				zero := 0
				card.CorrectOptionIndex = &zero
			}
		}

		if card.CardType == "" {
			if len(card.Options) > 0 {
				card.CardType = models.CardTypeMultipleChoice
			} else {
				card.CardType = models.CardTypeFlashcard
			}
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// validateImportCards partitions cards into usable ones and per-row error
// messages, reporting at most the first few errors.
func validateImportCards(cards []importCard) ([]importCard, []string) {
	valid := make([]importCard, 0, len(cards))
	errs := []string{}
	addErr := func(i int, msg string) {
		if len(errs) < maxImportErrors {
			errs = append(errs, fmt.Sprintf("card %d: %s", i+1, msg))
		}
	}
	for i, card := range cards {
		if card.CardType == "" {
			if len(card.Options) > 0 {
				card.CardType = models.CardTypeMultipleChoice
			} else {
				card.CardType = models.CardTypeFlashcard
			}
		}
		switch {
		case strings.TrimSpace(card.Question) == "":
			addErr(i, "question is required")
		case strings.TrimSpace(card.Answer) == "":
			addErr(i, "answer is required")
		case len(card.Question) > maxImportFieldLen || len(card.Answer) > maxImportFieldLen:
			addErr(i, fmt.Sprintf("question and answer must be at most %d characters", maxImportFieldLen))
		case !models.ValidCardType(card.CardType):
			addErr(i, "unknown card_type")
		case card.CardType == models.CardTypeMultipleChoice && len(card.Options) < 2:
			addErr(i, "multiple choice cards need at least 2 options")
		default:
			if card.CardType == models.CardTypeMultipleChoice && card.CorrectOptionIndex == nil {
				zero := 0
				card.CorrectOptionIndex = &zero
			}
			valid = append(valid, card)
			continue
		}
	}
	return valid, errs
}
