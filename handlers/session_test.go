package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomhardin/cardstack-api/models"
)

func TestStartSessionCreatesActiveSession(t *testing.T) {
	db := newTestHandler(t)
	user := createTestUser(t, db, "alice")
	deck := createTestDeck(t, db, user, "Biology")

	r := authedRequest(t, user, http.MethodPost, "/api/sessions/start",
		map[string]interface{}{"deckId": deck.PublicID, "mode": models.ModeMultipleChoice})
	w := httptest.NewRecorder()
	db.StartSession(w, r)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp map[string]interface{}
	decodeBody(t, w, &resp)
	sessionID, _ := resp["session_id"].(string)
	require.NotEmpty(t, sessionID)

	var session models.StudySession
	require.NoError(t, db.Where("public_id = ?", sessionID).First(&session).Error)
	assert.Equal(t, models.ModeMultipleChoice, session.Mode)
	assert.False(t, session.Completed)
	assert.Nil(t, session.CompletedAt)
	assert.Equal(t, 0, session.CardsStudied)
}

func TestStartSessionRejectsInvalidMode(t *testing.T) {
	db := newTestHandler(t)
	user := createTestUser(t, db, "alice")
	deck := createTestDeck(t, db, user, "Biology")

	r := authedRequest(t, user, http.MethodPost, "/api/sessions/start",
		map[string]interface{}{"deckId": deck.PublicID, "mode": "cramming"})
	w := httptest.NewRecorder()
	db.StartSession(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartSessionRejectsForeignPrivateDeck(t *testing.T) {
	db := newTestHandler(t)
	owner := createTestUser(t, db, "alice")
	other := createTestUser(t, db, "bob")
	deck := createTestDeck(t, db, owner, "Biology")

	r := authedRequest(t, other, http.MethodPost, "/api/sessions/start",
		map[string]interface{}{"deckId": deck.PublicID})
	w := httptest.NewRecorder()
	db.StartSession(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCompleteSessionRecordsDuration(t *testing.T) {
	db := newTestHandler(t)
	user := createTestUser(t, db, "alice")
	deck := createTestDeck(t, db, user, "Biology")

	publicID, err := gonanoid.New()
	require.NoError(t, err)
	session := models.StudySession{
		PublicID:  publicID,
		UserID:    user.ID,
		DeckID:    deck.ID,
		Mode:      models.ModeFlashcard,
		StartedAt: time.Now().Add(-90 * time.Second),
	}
	require.NoError(t, db.Create(&session).Error)

	r := authedRequest(t, user, http.MethodPost, "/api/sessions/"+publicID+"/complete", nil)
	r.SetPathValue("sessionID", publicID)
	w := httptest.NewRecorder()
	db.CompleteSession(w, r)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp sessionCompleteResponse
	decodeBody(t, w, &resp)
	assert.True(t, resp.Completed)
	assert.GreaterOrEqual(t, resp.DurationSeconds, 90)
	assert.LessOrEqual(t, resp.DurationSeconds, 95)
	assert.Equal(t, 2, resp.DurationMinutes)
}

func TestCompleteSessionClampsNegativeDuration(t *testing.T) {
	db := newTestHandler(t)
	user := createTestUser(t, db, "alice")
	deck := createTestDeck(t, db, user, "Biology")

	publicID, err := gonanoid.New()
	require.NoError(t, err)
	session := models.StudySession{
		PublicID:  publicID,
		UserID:    user.ID,
		DeckID:    deck.ID,
		Mode:      models.ModeFlashcard,
		StartedAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, db.Create(&session).Error)

	r := authedRequest(t, user, http.MethodPost, "/api/sessions/"+publicID+"/complete", nil)
	r.SetPathValue("sessionID", publicID)
	w := httptest.NewRecorder()
	db.CompleteSession(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var resp sessionCompleteResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, 0, resp.DurationSeconds)
}

func TestCompleteSessionTwiceIsANoOp(t *testing.T) {
	db := newTestHandler(t)
	user := createTestUser(t, db, "alice")
	deck := createTestDeck(t, db, user, "Biology")

	publicID, err := gonanoid.New()
	require.NoError(t, err)
	session := models.StudySession{
		PublicID:  publicID,
		UserID:    user.ID,
		DeckID:    deck.ID,
		Mode:      models.ModeFlashcard,
		StartedAt: time.Now().Add(-30 * time.Second),
	}
	require.NoError(t, db.Create(&session).Error)

	complete := func() sessionCompleteResponse {
		r := authedRequest(t, user, http.MethodPost, "/api/sessions/"+publicID+"/complete", nil)
		r.SetPathValue("sessionID", publicID)
		w := httptest.NewRecorder()
		db.CompleteSession(w, r)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp sessionCompleteResponse
		decodeBody(t, w, &resp)
		return resp
	}

	first := complete()
	time.Sleep(20 * time.Millisecond)
	second := complete()

	assert.Equal(t, first.DurationSeconds, second.DurationSeconds)
	assert.Equal(t, first.CompletedAt.Unix(), second.CompletedAt.Unix())
	assert.Equal(t, first.CardsStudied, second.CardsStudied)
}

func TestStudySessionEndToEnd(t *testing.T) {
	db := newTestHandler(t)
	user := createTestUser(t, db, "alice")
	deck := createTestDeck(t, db, user, "Biology")
	cards := []*models.Card{
		createTestCard(t, db, deck, "q1", "a1"),
		createTestCard(t, db, deck, "q2", "a2"),
		createTestCard(t, db, deck, "q3", "a3"),
	}

	r := authedRequest(t, user, http.MethodPost, "/api/sessions/start",
		map[string]interface{}{"deckId": deck.PublicID, "mode": models.ModeFlashcard})
	w := httptest.NewRecorder()
	db.StartSession(w, r)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var started map[string]interface{}
	decodeBody(t, w, &started)
	sessionID, _ := started["session_id"].(string)
	require.NotEmpty(t, sessionID)

	results := []bool{true, false, true}
	for i, correct := range results {
		recordAttempt(t, db, user, cards[i], correct, sessionID)
	}

	cr := authedRequest(t, user, http.MethodPost, "/api/sessions/"+sessionID+"/complete", nil)
	cr.SetPathValue("sessionID", sessionID)
	cw := httptest.NewRecorder()
	db.CompleteSession(cw, cr)
	require.Equal(t, http.StatusOK, cw.Code, cw.Body.String())

	var resp sessionCompleteResponse
	decodeBody(t, cw, &resp)
	assert.True(t, resp.Completed)
	assert.Equal(t, 3, resp.CardsStudied)
	assert.Equal(t, 2, resp.CardsCorrect)
	assert.Equal(t, 67, resp.Accuracy)

	for i, want := range []int{1, 0, 1} {
		var stat models.CardStat
		require.NoError(t, db.Where("user_id = ? AND card_id = ?", user.ID, cards[i].ID).First(&stat).Error)
		assert.Equal(t, want, stat.CurrentStreak, "card %d", i+1)
		assert.Equal(t, 1, stat.Attempts)
	}
}

func TestBeaconCompleteSessionNeedsNoAuth(t *testing.T) {
	db := newTestHandler(t)
	user := createTestUser(t, db, "alice")
	deck := createTestDeck(t, db, user, "Biology")
	session := startTestSession(t, db, user, deck)

	r := httptest.NewRequest(http.MethodPost, "/api/sessions/"+session.PublicID+"/beacon", nil)
	r.SetPathValue("sessionID", session.PublicID)
	w := httptest.NewRecorder()
	db.BeaconCompleteSession(w, r)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp map[string]interface{}
	decodeBody(t, w, &resp)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, session.PublicID, resp["session_id"])

	var got models.StudySession
	require.NoError(t, db.First(&got, session.ID).Error)
	assert.True(t, got.Completed)
}

func TestBeaconCompleteSessionUnknownID(t *testing.T) {
	db := newTestHandler(t)

	r := httptest.NewRequest(http.MethodPost, "/api/sessions/nope/beacon", nil)
	r.SetPathValue("sessionID", "nope")
	w := httptest.NewRecorder()
	db.BeaconCompleteSession(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBeaconAfterExplicitCompleteKeepsStoredDuration(t *testing.T) {
	db := newTestHandler(t)
	user := createTestUser(t, db, "alice")
	deck := createTestDeck(t, db, user, "Biology")

	publicID, err := gonanoid.New()
	require.NoError(t, err)
	session := models.StudySession{
		PublicID:  publicID,
		UserID:    user.ID,
		DeckID:    deck.ID,
		Mode:      models.ModeFlashcard,
		StartedAt: time.Now().Add(-60 * time.Second),
	}
	require.NoError(t, db.Create(&session).Error)
	completeTestSession(t, db, user, &session)

	var afterComplete models.StudySession
	require.NoError(t, db.First(&afterComplete, session.ID).Error)
	require.NotNil(t, afterComplete.DurationSeconds)
	stored := *afterComplete.DurationSeconds

	time.Sleep(20 * time.Millisecond)
	r := httptest.NewRequest(http.MethodPost, "/api/sessions/"+publicID+"/beacon", nil)
	r.SetPathValue("sessionID", publicID)
	w := httptest.NewRecorder()
	db.BeaconCompleteSession(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	decodeBody(t, w, &resp)
	assert.EqualValues(t, stored, resp["duration_seconds"])
}
