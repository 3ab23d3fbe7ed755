package handlers

import (
	"encoding/json"
	"log"
	"math"
	"net/http"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/tomhardin/cardstack-api/models"
	"github.com/tomhardin/cardstack-api/srs"
)

type sessionCompleteResponse struct {
	SessionID       string    `json:"session_id"`
	Completed       bool      `json:"completed"`
	CompletedAt     time.Time `json:"completed_at"`
	DurationSeconds int       `json:"duration_seconds"`
	DurationMinutes int       `json:"duration_minutes"`
	CardsStudied    int       `json:"cards_studied"`
	CardsCorrect    int       `json:"cards_correct"`
	Accuracy        int       `json:"accuracy"`
}

// POST /api/sessions/start
func (db *DBHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeckID string `json:"deckId"`
		Mode   string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid request body")
		return
	}
	if req.DeckID == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Deck ID is required")
		return
	}
	if req.Mode == "" {
		req.Mode = models.ModeFlashcard
	}
	if !models.ValidStudyMode(req.Mode) {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid study mode")
		return
	}

	user, ok := db.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized")
		return
	}

	var deck models.Deck
	if err := db.Where("public_id = ?", req.DeckID).First(&deck).Error; err != nil {
		writeError(w, http.StatusNotFound, codeNotFound, "Deck not found or access denied")
		return
	}
	if deck.UserID != user.ID && !deck.IsPublic {
		writeError(w, http.StatusNotFound, codeNotFound, "Deck not found or access denied")
		return
	}

	publicID, err := gonanoid.New()
	if err != nil {
		log.Printf("StartSession: failed to generate publicID: %v", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	session := models.StudySession{
		PublicID:  publicID,
		UserID:    user.ID,
		DeckID:    deck.ID,
		Mode:      req.Mode,
		StartedAt: time.Now(),
	}
	if err := db.Create(&session).Error; err != nil {
		log.Printf("StartSession: failed to create session for deckID=%s: %v", req.DeckID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to create study session")
		return
	}

	now := time.Now()
	db.Model(&deck).Update("last_studied", &now)
	if deck.UserID != user.ID {
		// Studying someone else's shared deck refreshes the saved-deck record.
		db.Model(&models.SharedDeckAccess{}).
			Where("deck_id = ? AND user_id = ?", deck.ID, user.ID).
			Update("last_studied_at", &now)
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"session_id": session.PublicID,
		"deck_id":    deck.PublicID,
		"deck_name":  deck.Name,
		"mode":       session.Mode,
		"started_at": session.StartedAt,
	})
}

// POST /api/sessions/{sessionID}/complete
//
// Terminal transition ACTIVE -> COMPLETED. Completing an already completed
// session is a no-op that returns the stored result: the explicit finish
// action, the unload beacon, and the visibility-timeout heuristic can all
// fire for the same session without stretching its recorded duration.
func (db *DBHandler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")

	user, ok := db.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized")
		return
	}

	var session models.StudySession
	if err := db.Where("public_id = ? AND user_id = ?", sessionID, user.ID).First(&session).Error; err != nil {
		writeError(w, http.StatusNotFound, codeNotFound, "Session not found or access denied")
		return
	}

	resp, err := db.finishSession(&session)
	if err != nil {
		log.Printf("CompleteSession: failed to complete session %s: %v", sessionID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to complete session")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// POST /api/sessions/{sessionID}/beacon
//
// Unauthenticated variant for navigator.sendBeacon on page unload: cookies
// and bearer tokens may be unavailable mid-teardown, so the unguessable
// session public ID is the only credential. Fire-and-forget senders never
// read the response; duplicates land on the same no-op path as re-completion.
func (db *DBHandler) BeaconCompleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")

	var session models.StudySession
	if err := db.Where("public_id = ?", sessionID).First(&session).Error; err != nil {
		writeError(w, http.StatusNotFound, codeNotFound, "Session not found")
		return
	}

	resp, err := db.finishSession(&session)
	if err != nil {
		log.Printf("BeaconCompleteSession: failed to complete session %s: %v", sessionID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to complete session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"session_id":       sessionID,
		"duration_seconds": resp.DurationSeconds,
	})
}

func (db *DBHandler) finishSession(session *models.StudySession) (*sessionCompleteResponse, error) {
	if session.Completed {
		completedAt := time.Now()
		if session.CompletedAt != nil {
			completedAt = *session.CompletedAt
		}
		duration := 0
		if session.DurationSeconds != nil {
			duration = *session.DurationSeconds
		}
		return &sessionCompleteResponse{
			SessionID:       session.PublicID,
			Completed:       true,
			CompletedAt:     completedAt,
			DurationSeconds: duration,
			DurationMinutes: int(math.Round(float64(duration) / 60)),
			CardsStudied:    session.CardsStudied,
			CardsCorrect:    session.CardsCorrect,
			Accuracy:        srs.Accuracy(session.CardsCorrect, session.CardsStudied),
		}, nil
	}

	completedAt := time.Now()
	duration := int(completedAt.Sub(session.StartedAt).Seconds())
	if duration < 0 {
		// Clock skew between instances must never record negative time.
		duration = 0
	}

	session.Completed = true
	session.CompletedAt = &completedAt
	session.DurationSeconds = &duration

	err := db.Model(session).Updates(map[string]interface{}{
		"completed":        true,
		"completed_at":     &completedAt,
		"duration_seconds": duration,
	}).Error
	if err != nil {
		return nil, err
	}

	return &sessionCompleteResponse{
		SessionID:       session.PublicID,
		Completed:       true,
		CompletedAt:     completedAt,
		DurationSeconds: duration,
		DurationMinutes: int(math.Round(float64(duration) / 60)),
		CardsStudied:    session.CardsStudied,
		CardsCorrect:    session.CardsCorrect,
		Accuracy:        srs.Accuracy(session.CardsCorrect, session.CardsStudied),
	}, nil
}
