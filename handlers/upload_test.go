package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomhardin/cardstack-api/ai"
	"github.com/tomhardin/cardstack-api/models"
)

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Chat(_ context.Context, _ []ai.Message) (string, error) {
	return f.response, f.err
}

const fakeGenerationResponse = `{"flashcards":[
	{"question":"What is photosynthesis?","answer":"Conversion of light to chemical energy","options":["Conversion of light to chemical energy","Cell division","Protein folding","Osmosis"],"tags":["biology"]},
	{"question":"Where does it occur?","answer":"Chloroplasts","options":["Chloroplasts","Mitochondria","Nucleus","Ribosomes"]}
]}`

func uploadRequest(t *testing.T, user *models.User, filename, content string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/api/uploads", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	claims := &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{Subject: user.Subject},
	}
	return r.WithContext(context.WithValue(r.Context(), jwtmiddleware.ContextKey{}, claims))
}

func TestCreateUploadAcceptsTextFile(t *testing.T) {
	db := newTestHandler(t)
	user := createTestUser(t, db, "alice")

	r := uploadRequest(t, user, "notes.txt", "Photosynthesis converts light into chemical energy.")
	w := httptest.NewRecorder()
	db.CreateUpload(w, r)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp uploadResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, models.UploadStatusPending, resp.Status)
	assert.Equal(t, "notes.txt", resp.FileName)
	assert.NotEmpty(t, resp.UploadID)
}

func TestCreateUploadRejectsBinaryFormats(t *testing.T) {
	db := newTestHandler(t)
	user := createTestUser(t, db, "alice")

	for _, name := range []string{"slides.pdf", "doc.docx", "image.png"} {
		r := uploadRequest(t, user, name, "binary-ish content")
		w := httptest.NewRecorder()
		db.CreateUpload(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}
}

func TestCreateUploadRejectsEmptyFile(t *testing.T) {
	db := newTestHandler(t)
	user := createTestUser(t, db, "alice")

	r := uploadRequest(t, user, "notes.txt", "   \n  ")
	w := httptest.NewRecorder()
	db.CreateUpload(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessUploadGeneratesDeck(t *testing.T) {
	db := newTestHandler(t)
	db.AI = ai.NewGenerator(&fakeLLM{response: fakeGenerationResponse})
	user := createTestUser(t, db, "alice")

	r := uploadRequest(t, user, "notes.txt", "Photosynthesis study notes with plenty of content.")
	w := httptest.NewRecorder()
	db.CreateUpload(w, r)
	require.Equal(t, http.StatusCreated, w.Code)
	var created uploadResponse
	decodeBody(t, w, &created)

	pr := authedRequest(t, user, http.MethodPost, "/api/uploads/"+created.UploadID+"/process", nil)
	pr.SetPathValue("uploadID", created.UploadID)
	pw := httptest.NewRecorder()
	db.ProcessUpload(pw, pr)

	require.Equal(t, http.StatusOK, pw.Code, pw.Body.String())
	var processed uploadResponse
	decodeBody(t, pw, &processed)
	assert.Equal(t, models.UploadStatusCompleted, processed.Status)
	assert.Equal(t, 2, processed.CardsGenerated)
	require.NotNil(t, processed.DeckID)

	var deck models.Deck
	require.NoError(t, db.Where("public_id = ?", *processed.DeckID).First(&deck).Error)
	var cards []models.Card
	require.NoError(t, db.Where("deck_id = ?", deck.ID).Order("position asc").Find(&cards).Error)
	require.Len(t, cards, 2)
	assert.Equal(t, "What is photosynthesis?", cards[0].Question)
	assert.Equal(t, models.CardTypeMultipleChoice, cards[0].CardType)
	require.NotNil(t, cards[0].CorrectOptionIndex)
	assert.Equal(t, 0, *cards[0].CorrectOptionIndex)
}

func TestProcessUploadMarksFailureOnBadResponse(t *testing.T) {
	db := newTestHandler(t)
	db.AI = ai.NewGenerator(&fakeLLM{response: "sorry, no questions today"})
	user := createTestUser(t, db, "alice")

	r := uploadRequest(t, user, "notes.txt", "Some study notes")
	w := httptest.NewRecorder()
	db.CreateUpload(w, r)
	require.Equal(t, http.StatusCreated, w.Code)
	var created uploadResponse
	decodeBody(t, w, &created)

	pr := authedRequest(t, user, http.MethodPost, "/api/uploads/"+created.UploadID+"/process", nil)
	pr.SetPathValue("uploadID", created.UploadID)
	pw := httptest.NewRecorder()
	db.ProcessUpload(pw, pr)

	assert.Equal(t, http.StatusBadGateway, pw.Code)
	var processed uploadResponse
	decodeBody(t, pw, &processed)
	assert.Equal(t, models.UploadStatusFailed, processed.Status)
	assert.NotEmpty(t, processed.Error)
}

func TestProcessUploadWithoutGeneratorConfigured(t *testing.T) {
	db := newTestHandler(t)
	user := createTestUser(t, db, "alice")

	r := authedRequest(t, user, http.MethodPost, "/api/uploads/xyz/process", nil)
	r.SetPathValue("uploadID", "xyz")
	w := httptest.NewRecorder()
	db.ProcessUpload(w, r)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGenerateFromNotes(t *testing.T) {
	db := newTestHandler(t)
	db.AI = ai.NewGenerator(&fakeLLM{response: fakeGenerationResponse})
	user := createTestUser(t, db, "alice")

	notes := strings.Repeat("Photosynthesis is the process plants use to make food. ", 3)
	r := authedRequest(t, user, http.MethodPost, "/api/generate",
		map[string]interface{}{"notes": notes, "deckName": "Biology 101"})
	w := httptest.NewRecorder()
	db.GenerateFromNotes(w, r)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp map[string]interface{}
	decodeBody(t, w, &resp)
	assert.Equal(t, "Biology 101", resp["name"])
	assert.EqualValues(t, 2, resp["cards_generated"])
}

func TestGenerateFromNotesValidation(t *testing.T) {
	db := newTestHandler(t)
	db.AI = ai.NewGenerator(&fakeLLM{response: fakeGenerationResponse})
	user := createTestUser(t, db, "alice")

	// Notes below the minimum length.
	r := authedRequest(t, user, http.MethodPost, "/api/generate",
		map[string]interface{}{"notes": "too short", "deckName": "X"})
	w := httptest.NewRecorder()
	db.GenerateFromNotes(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Missing deck name.
	r = authedRequest(t, user, http.MethodPost, "/api/generate",
		map[string]interface{}{"notes": strings.Repeat("a", 60)})
	w = httptest.NewRecorder()
	db.GenerateFromNotes(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
