package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomhardin/cardstack-api/models"
)

func importRequest(t *testing.T, user *models.User, filename, content string, fields map[string]string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/api/decks/import", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	claims := &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{Subject: user.Subject},
	}
	return r.WithContext(context.WithValue(r.Context(), jwtmiddleware.ContextKey{}, claims))
}

func TestExportDeckJSON(t *testing.T) {
	db := newTestHandler(t)
	user := createTestUser(t, db, "alice")
	deck := createTestDeck(t, db, user, "World Capitals")
	createTestCard(t, db, deck, "Capital of France?", "Paris")
	createTestCard(t, db, deck, "Capital of Japan?", "Tokyo")

	r := authedRequest(t, user, http.MethodGet, "/api/decks/"+deck.PublicID+"/export", nil)
	r.SetPathValue("deckID", deck.PublicID)
	w := httptest.NewRecorder()
	db.ExportDeck(w, r)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="World_Capitals.json"`)

	var payload exportPayload
	decodeBody(t, w, &payload)
	assert.Equal(t, "World Capitals", payload.Name)
	require.Len(t, payload.Cards, 2)
	assert.Equal(t, "Capital of France?", payload.Cards[0].Question)
	assert.Equal(t, "Paris", payload.Cards[0].Answer)
	assert.Nil(t, payload.Cards[0].Attempts)
}

func TestExportDeckJSONWithStats(t *testing.T) {
	db := newTestHandler(t)
	user := createTestUser(t, db, "alice")
	deck := createTestDeck(t, db, user, "Biology")
	card := createTestCard(t, db, deck, "q", "a")

	recordAttempt(t, db, user, card, true, "")
	recordAttempt(t, db, user, card, false, "")

	r := authedRequest(t, user, http.MethodGet, "/api/decks/"+deck.PublicID+"/export?includeStats=true", nil)
	r.SetPathValue("deckID", deck.PublicID)
	w := httptest.NewRecorder()
	db.ExportDeck(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var payload exportPayload
	decodeBody(t, w, &payload)
	require.Len(t, payload.Cards, 1)
	require.NotNil(t, payload.Cards[0].Attempts)
	assert.Equal(t, 2, *payload.Cards[0].Attempts)
	assert.Equal(t, 1, *payload.Cards[0].Correct)
	assert.Equal(t, 50, *payload.Cards[0].Accuracy)
}

func TestExportDeckCSV(t *testing.T) {
	db := newTestHandler(t)
	user := createTestUser(t, db, "alice")
	deck := createTestDeck(t, db, user, "Biology")
	createTestCard(t, db, deck, "q1", "a1")
	createTestCard(t, db, deck, "q2", "a2")

	r := authedRequest(t, user, http.MethodGet, "/api/decks/"+deck.PublicID+"/export?format=csv", nil)
	r.SetPathValue("deckID", deck.PublicID)
	w := httptest.NewRecorder()
	db.ExportDeck(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))

	rows, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"question", "answer", "card_type", "options", "correct_option_index", "tags"}, rows[0])
	assert.Equal(t, "q1", rows[1][0])
	assert.Equal(t, "a2", rows[2][1])
}

func TestExportDeckRejectsUnknownFormat(t *testing.T) {
	db := newTestHandler(t)
	user := createTestUser(t, db, "alice")
	deck := createTestDeck(t, db, user, "Biology")

	r := authedRequest(t, user, http.MethodGet, "/api/decks/"+deck.PublicID+"/export?format=xml", nil)
	r.SetPathValue("deckID", deck.PublicID)
	w := httptest.NewRecorder()
	db.ExportDeck(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportDeckFromJSONArray(t *testing.T) {
	db := newTestHandler(t)
	user := createTestUser(t, db, "alice")

	content := `[
		{"question":"Capital of France?","answer":"Paris","card_type":"flashcard"},
		{"question":"2+2?","answer":"4","card_type":"multiple_choice","options":["4","3","5"],"correct_option_index":0}
	]`
	r := importRequest(t, user, "capitals.json", content, nil)
	w := httptest.NewRecorder()
	db.ImportDeck(w, r)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp map[string]interface{}
	decodeBody(t, w, &resp)
	assert.EqualValues(t, 2, resp["inserted"])
	assert.EqualValues(t, 0, resp["failed"])
	assert.Equal(t, "capitals", resp["name"])

	var deck models.Deck
	require.NoError(t, db.Where("public_id = ?", resp["deck_id"]).First(&deck).Error)
	var cards []models.Card
	require.NoError(t, db.Where("deck_id = ?", deck.ID).Order("position asc").Find(&cards).Error)
	require.Len(t, cards, 2)
	assert.Equal(t, 0, cards[0].Position)
	assert.Equal(t, 1, cards[1].Position)
	assert.Equal(t, []string{"4", "3", "5"}, cards[1].OptionList())
}

func TestImportDeckFromExportPayload(t *testing.T) {
	db := newTestHandler(t)
	user := createTestUser(t, db, "alice")

	content := `{"name":"Chemistry","description":"Periodic table","cards":[{"question":"Symbol for gold?","answer":"Au"}]}`
	r := importRequest(t, user, "export.json", content, nil)
	w := httptest.NewRecorder()
	db.ImportDeck(w, r)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp map[string]interface{}
	decodeBody(t, w, &resp)
	assert.Equal(t, "Chemistry", resp["name"])

	var deck models.Deck
	require.NoError(t, db.Where("public_id = ?", resp["deck_id"]).First(&deck).Error)
	assert.Equal(t, "Periodic table", deck.Description)
}

func TestImportDeckFromCSVWithDistractors(t *testing.T) {
	db := newTestHandler(t)
	user := createTestUser(t, db, "alice")

	content := strings.Join([]string{
		"question,answer,option_1,option_2,option_3",
		"Capital of France?,Paris,London,Berlin,Madrid",
	}, "\n")
	r := importRequest(t, user, "capitals.csv", content, map[string]string{"name": "Capitals"})
	w := httptest.NewRecorder()
	db.ImportDeck(w, r)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp map[string]interface{}
	decodeBody(t, w, &resp)
	assert.EqualValues(t, 1, resp["inserted"])

	var deck models.Deck
	require.NoError(t, db.Where("public_id = ?", resp["deck_id"]).First(&deck).Error)
	var card models.Card
	require.NoError(t, db.Where("deck_id = ?", deck.ID).First(&card).Error)
	assert.Equal(t, models.CardTypeMultipleChoice, card.CardType)
	assert.Equal(t, []string{"Paris", "London", "Berlin", "Madrid"}, card.OptionList())
	require.NotNil(t, card.CorrectOptionIndex)
	assert.Equal(t, 0, *card.CorrectOptionIndex)
}

func TestImportDeckReportsInvalidRows(t *testing.T) {
	db := newTestHandler(t)
	user := createTestUser(t, db, "alice")

	content := `[
		{"question":"valid","answer":"yes"},
		{"question":"","answer":"missing question"},
		{"question":"mcq without options","answer":"x","card_type":"multiple_choice"}
	]`
	r := importRequest(t, user, "mixed.json", content, nil)
	w := httptest.NewRecorder()
	db.ImportDeck(w, r)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp map[string]interface{}
	decodeBody(t, w, &resp)
	assert.EqualValues(t, 1, resp["inserted"])
	errs := resp["errors"].([]interface{})
	assert.Len(t, errs, 2)
}

func TestImportDeckRejectsEmptyFile(t *testing.T) {
	db := newTestHandler(t)
	user := createTestUser(t, db, "alice")

	r := importRequest(t, user, "empty.json", "[]", nil)
	w := httptest.NewRecorder()
	db.ImportDeck(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportDeckRejectsAllInvalidCards(t *testing.T) {
	db := newTestHandler(t)
	user := createTestUser(t, db, "alice")

	r := importRequest(t, user, "bad.json", `[{"question":"","answer":""}]`, nil)
	w := httptest.NewRecorder()
	db.ImportDeck(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportThenExportRoundTrip(t *testing.T) {
	db := newTestHandler(t)
	user := createTestUser(t, db, "alice")

	content := `{"name":"Round Trip","cards":[{"question":"q1","answer":"a1"},{"question":"q2","answer":"a2"}]}`
	r := importRequest(t, user, "roundtrip.json", content, nil)
	w := httptest.NewRecorder()
	db.ImportDeck(w, r)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created map[string]interface{}
	decodeBody(t, w, &created)
	deckID := created["deck_id"].(string)

	er := authedRequest(t, user, http.MethodGet, "/api/decks/"+deckID+"/export", nil)
	er.SetPathValue("deckID", deckID)
	ew := httptest.NewRecorder()
	db.ExportDeck(ew, er)
	require.Equal(t, http.StatusOK, ew.Code)

	var payload exportPayload
	decodeBody(t, ew, &payload)
	assert.Equal(t, "Round Trip", payload.Name)
	require.Len(t, payload.Cards, 2)
	assert.Equal(t, "q1", payload.Cards[0].Question)
	assert.Equal(t, "a2", payload.Cards[1].Answer)
}
