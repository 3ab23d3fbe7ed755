package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tomhardin/cardstack-api/models"
	"github.com/tomhardin/cardstack-api/srs"
)

type cardStatsResponse struct {
	CardID         string     `json:"card_id"`
	Attempts       int        `json:"attempts"`
	Correct        int        `json:"correct"`
	Accuracy       int        `json:"accuracy"`
	Flagged        bool       `json:"flagged"`
	LastReviewedAt *time.Time `json:"last_reviewed_at"`
	CurrentStreak  int        `json:"current_streak"`
	BestStreak     int        `json:"best_streak"`
	EaseFactor     float64    `json:"ease_factor"`
	IntervalDays   int        `json:"interval_days"`
}

func statsResponse(cardID string, stat *models.CardStat) cardStatsResponse {
	return cardStatsResponse{
		CardID:         cardID,
		Attempts:       stat.Attempts,
		Correct:        stat.Correct,
		Accuracy:       srs.Accuracy(stat.Correct, stat.Attempts),
		Flagged:        stat.Flagged,
		LastReviewedAt: stat.LastReviewedAt,
		CurrentStreak:  stat.CurrentStreak,
		BestStreak:     stat.BestStreak,
		EaseFactor:     stat.EaseFactor,
		IntervalDays:   stat.IntervalDays,
	}
}

// GET /api/cards/{cardID}/stats
//
// Cards that were never reviewed report default stats rather than 404, so
// the study view can always render a stats panel.
func (db *DBHandler) GetCardStats(w http.ResponseWriter, r *http.Request) {
	cardID := r.PathValue("cardID")

	user, ok := db.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized")
		return
	}
	card, ok := db.visibleCard(r, cardID)
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "Card not found or access denied")
		return
	}

	var stat models.CardStat
	err := db.Where("user_id = ? AND card_id = ?", user.ID, card.ID).First(&stat).Error
	if err == gorm.ErrRecordNotFound {
		fresh := srs.NewState()
		stat = models.CardStat{EaseFactor: fresh.EaseFactor}
	} else if err != nil {
		log.Printf("GetCardStats: failed to fetch stats for cardID=%s: %v", cardID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to fetch statistics")
		return
	}

	writeJSON(w, http.StatusOK, statsResponse(cardID, &stat))
}

// POST /api/cards/{cardID}/attempt
//
// Records one attempt: applies the ease/interval/streak update to the
// caller's CardStat row, appends an audit interaction, and bumps the active
// session's counters when a session id is supplied. The audit write and the
// session update are best-effort; only the stat upsert can fail the request.
func (db *DBHandler) RecordInteraction(w http.ResponseWriter, r *http.Request) {
	cardID := r.PathValue("cardID")

	var req struct {
		Correct             *bool    `json:"correct"`
		SessionID           string   `json:"sessionId"`
		ResponseTime        *float64 `json:"responseTime"`
		InteractionType     string   `json:"interactionType"`
		SelectedOptionIndex *int     `json:"selectedOptionIndex"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid request body")
		return
	}
	if req.Correct == nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid request: correct must be a boolean")
		return
	}
	if req.InteractionType == "" {
		req.InteractionType = models.InteractionFlip
	}
	if req.InteractionType != models.InteractionFlip && req.InteractionType != models.InteractionMultipleChoice {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid interaction type")
		return
	}

	user, ok := db.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized")
		return
	}
	card, ok := db.visibleCard(r, cardID)
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "Card not found or access denied")
		return
	}

	correct := *req.Correct
	now := time.Now()

	var stat models.CardStat
	err := db.Where("user_id = ? AND card_id = ?", user.ID, card.ID).First(&stat).Error
	found := err == nil
	if err != nil && err != gorm.ErrRecordNotFound {
		log.Printf("RecordInteraction: failed to fetch stats for cardID=%s: %v", cardID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to fetch statistics")
		return
	}

	state := srs.NewState()
	if found {
		state = srs.State{
			Attempts:      stat.Attempts,
			Correct:       stat.Correct,
			CurrentStreak: stat.CurrentStreak,
			BestStreak:    stat.BestStreak,
			EaseFactor:    stat.EaseFactor,
			IntervalDays:  stat.IntervalDays,
		}
	}
	next := state.Review(correct)

	stat.UserID = user.ID
	stat.CardID = card.ID
	stat.Attempts = next.Attempts
	stat.Correct = next.Correct
	stat.CurrentStreak = next.CurrentStreak
	stat.BestStreak = next.BestStreak
	stat.EaseFactor = next.EaseFactor
	stat.IntervalDays = next.IntervalDays
	stat.LastReviewedAt = &now

	if found {
		err = db.Model(&stat).Updates(map[string]interface{}{
			"attempts":         stat.Attempts,
			"correct":          stat.Correct,
			"current_streak":   stat.CurrentStreak,
			"best_streak":      stat.BestStreak,
			"ease_factor":      stat.EaseFactor,
			"interval_days":    stat.IntervalDays,
			"last_reviewed_at": stat.LastReviewedAt,
		}).Error
	} else {
		// Create-or-merge: a concurrent first attempt on the same card
		// resolves through the store's conflict clause instead of erroring.
		err = db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "card_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"attempts", "correct", "current_streak", "best_streak",
				"ease_factor", "interval_days", "last_reviewed_at",
			}),
		}).Create(&stat).Error
	}
	if err != nil {
		log.Printf("RecordInteraction: failed to upsert stats for cardID=%s: %v", cardID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to update statistics")
		return
	}

	// Audit trail; never fails the request.
	interaction := models.CardInteraction{
		UserID:              user.ID,
		CardID:              card.ID,
		InteractionType:     req.InteractionType,
		Correct:             &correct,
		ResponseTimeSeconds: req.ResponseTime,
		SelectedOptionIndex: req.SelectedOptionIndex,
	}

	if req.SessionID != "" {
		var session models.StudySession
		err := db.Where("public_id = ? AND user_id = ?", req.SessionID, user.ID).First(&session).Error
		if err != nil {
			log.Printf("RecordInteraction: session %s not found: %v", req.SessionID, err)
		} else {
			interaction.SessionID = &session.ID

			correctInc := 0
			if correct {
				correctInc = 1
			}
			result := db.Model(&models.StudySession{}).
				Where("id = ? AND completed = ?", session.ID, false).
				Updates(map[string]interface{}{
					"cards_studied": gorm.Expr("cards_studied + 1"),
					"cards_correct": gorm.Expr("cards_correct + ?", correctInc),
				})
			if result.Error != nil {
				log.Printf("RecordInteraction: failed to update session %s: %v", req.SessionID, result.Error)
			}
		}
	}

	if err := db.Create(&interaction).Error; err != nil {
		log.Printf("RecordInteraction: failed to record interaction for cardID=%s: %v", cardID, err)
	}

	writeJSON(w, http.StatusOK, statsResponse(cardID, &stat))
}

// POST /api/cards/{cardID}/flag
//
// Idempotent: re-flagging an already flagged card refreshes flagged_at,
// unflagging a never-flagged card leaves a default row with flagged=false.
// Attempt counters are never touched here.
func (db *DBHandler) ToggleFlag(w http.ResponseWriter, r *http.Request) {
	cardID := r.PathValue("cardID")

	var req struct {
		Flagged *bool `json:"flagged"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid request body")
		return
	}
	if req.Flagged == nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid request: flagged must be a boolean")
		return
	}

	user, ok := db.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized")
		return
	}
	card, ok := db.visibleCard(r, cardID)
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "Card not found or access denied")
		return
	}

	flagged := *req.Flagged
	var flaggedAt *time.Time
	if flagged {
		now := time.Now()
		flaggedAt = &now
	}

	var stat models.CardStat
	err := db.Where("user_id = ? AND card_id = ?", user.ID, card.ID).First(&stat).Error
	if err == gorm.ErrRecordNotFound {
		fresh := srs.NewState()
		stat = models.CardStat{
			UserID:     user.ID,
			CardID:     card.ID,
			EaseFactor: fresh.EaseFactor,
			Flagged:    flagged,
			FlaggedAt:  flaggedAt,
		}
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "card_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"flagged", "flagged_at"}),
		}).Create(&stat).Error; err != nil {
			log.Printf("ToggleFlag: failed to create stats for cardID=%s: %v", cardID, err)
			writeError(w, http.StatusInternalServerError, codeInternal, "Failed to update flag status")
			return
		}
	} else if err != nil {
		log.Printf("ToggleFlag: failed to fetch stats for cardID=%s: %v", cardID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to update flag status")
		return
	} else {
		stat.Flagged = flagged
		stat.FlaggedAt = flaggedAt
		if err := db.Model(&stat).Updates(map[string]interface{}{
			"flagged":    flagged,
			"flagged_at": flaggedAt,
		}).Error; err != nil {
			log.Printf("ToggleFlag: failed to update flag for cardID=%s: %v", cardID, err)
			writeError(w, http.StatusInternalServerError, codeInternal, "Failed to update flag status")
			return
		}
	}

	// Audit trail; never fails the request.
	interactionType := models.InteractionFlag
	if !flagged {
		interactionType = models.InteractionUnflag
	}
	interaction := models.CardInteraction{
		UserID:          user.ID,
		CardID:          card.ID,
		InteractionType: interactionType,
	}
	if err := db.Create(&interaction).Error; err != nil {
		log.Printf("ToggleFlag: failed to record interaction for cardID=%s: %v", cardID, err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"card_id":    cardID,
		"flagged":    stat.Flagged,
		"flagged_at": stat.FlaggedAt,
	})
}
