package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tomhardin/cardstack-api/models"
)

// newTestHandler opens a fresh in-memory database per test. The named
// shared-cache DSN keeps gorm's pooled connections on the same database.
func newTestHandler(t *testing.T) *DBHandler {
	t.Helper()

	name, err := gonanoid.New()
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Deck{},
		&models.Card{},
		&models.CardStat{},
		&models.StudySession{},
		&models.CardInteraction{},
		&models.DeckShare{},
		&models.SharedDeckAccess{},
		&models.Upload{},
	))

	return &DBHandler{DB: db}
}

func createTestUser(t *testing.T, db *DBHandler, nickname string) *models.User {
	t.Helper()
	user := models.User{Subject: "auth0|" + nickname, Nickname: nickname}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func createTestDeck(t *testing.T, db *DBHandler, user *models.User, name string) *models.Deck {
	t.Helper()
	publicID, err := gonanoid.New()
	require.NoError(t, err)
	deck := models.Deck{PublicID: publicID, Name: name, UserID: user.ID}
	require.NoError(t, db.Create(&deck).Error)
	return &deck
}

func createTestCard(t *testing.T, db *DBHandler, deck *models.Deck, question, answer string) *models.Card {
	t.Helper()
	publicID, err := gonanoid.New()
	require.NoError(t, err)
	card := models.Card{
		PublicID: publicID,
		DeckID:   deck.ID,
		Question: question,
		Answer:   answer,
		CardType: models.CardTypeFlashcard,
	}
	require.NoError(t, db.Create(&card).Error)
	return &card
}

// authedRequest builds a request carrying validated bearer claims for user,
// the same context shape the JWT middleware produces.
func authedRequest(t *testing.T, user *models.User, method, target string, body interface{}) *http.Request {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	r := httptest.NewRequest(method, target, reader)
	claims := &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{Subject: user.Subject},
	}
	return r.WithContext(context.WithValue(r.Context(), jwtmiddleware.ContextKey{}, claims))
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}
