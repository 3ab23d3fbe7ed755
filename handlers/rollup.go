package handlers

import (
	"log"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/tomhardin/cardstack-api/models"
	"github.com/tomhardin/cardstack-api/srs"
)

// Display limits for the rollup views. Deck-level flagged lists are
// uncapped; the user-level overview is.
const (
	recentSessionLimit   = 10
	userFlaggedCardLimit = 20
)

type flaggedCardView struct {
	CardID       string     `json:"card_id"`
	DeckID       string     `json:"deck_id,omitempty"`
	DeckName     string     `json:"deck_name,omitempty"`
	Question     string     `json:"question"`
	Attempts     int        `json:"attempts"`
	Correct      int        `json:"correct"`
	Accuracy     int        `json:"accuracy"`
	LastReviewed *time.Time `json:"last_reviewed"`
}

type sessionView struct {
	SessionID       string     `json:"session_id"`
	DeckID          string     `json:"deck_id,omitempty"`
	DeckName        string     `json:"deck_name,omitempty"`
	Mode            string     `json:"mode"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at"`
	CardsStudied    int        `json:"cards_studied"`
	CardsCorrect    int        `json:"cards_correct"`
	Accuracy        int        `json:"accuracy"`
	DurationMinutes *int       `json:"duration_minutes"`
}

// GET /api/stats/deck/{deckID}
//
// Pure read: every percentage is recomputed from raw counters so stored
// state can never drift from what the user sees.
func (db *DBHandler) GetDeckStats(w http.ResponseWriter, r *http.Request) {
	deckID := r.PathValue("deckID")
	deck, user, err := db.deckForOwner(r, deckID)
	if err != nil {
		writeDeckAccessError(w, err)
		return
	}

	var cards []models.Card
	if err := db.Select("id", "public_id", "question").Where("deck_id = ?", deck.ID).Find(&cards).Error; err != nil {
		log.Printf("GetDeckStats: failed to fetch cards for deckID=%s: %v", deckID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to fetch statistics")
		return
	}

	cardByID := make(map[uint]*models.Card, len(cards))
	cardIDs := make([]uint, 0, len(cards))
	for i := range cards {
		cardByID[cards[i].ID] = &cards[i]
		cardIDs = append(cardIDs, cards[i].ID)
	}

	var stats []models.CardStat
	if len(cardIDs) > 0 {
		if err := db.Where("user_id = ? AND card_id IN ?", user.ID, cardIDs).Find(&stats).Error; err != nil {
			log.Printf("GetDeckStats: failed to fetch card stats for deckID=%s: %v", deckID, err)
			writeError(w, http.StatusInternalServerError, codeInternal, "Failed to fetch statistics")
			return
		}
	}

	totalCards := len(cards)
	cardsStudied := len(stats)
	totalAttempts, totalCorrect, flaggedCount := 0, 0, 0
	flagged := []flaggedCardView{}
	for i := range stats {
		totalAttempts += stats[i].Attempts
		totalCorrect += stats[i].Correct
		if stats[i].Flagged {
			flaggedCount++
			card := cardByID[stats[i].CardID]
			if card == nil {
				continue
			}
			flagged = append(flagged, flaggedCardView{
				CardID:       card.PublicID,
				Question:     card.Question,
				Attempts:     stats[i].Attempts,
				Correct:      stats[i].Correct,
				Accuracy:     srs.Accuracy(stats[i].Correct, stats[i].Attempts),
				LastReviewed: stats[i].LastReviewedAt,
			})
		}
	}
	sortFlaggedByRecency(flagged)

	var sessions []models.StudySession
	var sessionCount int64
	db.Model(&models.StudySession{}).
		Where("user_id = ? AND deck_id = ? AND completed = ?", user.ID, deck.ID, true).
		Count(&sessionCount)
	if err := db.Where("user_id = ? AND deck_id = ? AND completed = ?", user.ID, deck.ID, true).
		Order("completed_at desc").Limit(recentSessionLimit).Find(&sessions).Error; err != nil {
		log.Printf("GetDeckStats: failed to fetch sessions for deckID=%s: %v", deckID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to fetch statistics")
		return
	}

	var lastStudied *time.Time
	if len(sessions) > 0 {
		lastStudied = sessions[0].CompletedAt
	}

	recent := make([]sessionView, 0, len(sessions))
	for i := range sessions {
		recent = append(recent, deckSessionView(&sessions[i]))
	}

	completionPct := 0
	if totalCards > 0 {
		completionPct = int(math.Round(float64(cardsStudied) / float64(totalCards) * 100))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deck": map[string]interface{}{
			"id":         deck.PublicID,
			"name":       deck.Name,
			"card_count": totalCards,
		},
		"statistics": map[string]interface{}{
			"total_cards":           totalCards,
			"cards_studied":         cardsStudied,
			"cards_unstudied":       totalCards - cardsStudied,
			"flagged_count":         flaggedCount,
			"total_attempts":        totalAttempts,
			"total_correct":         totalCorrect,
			"accuracy_percentage":   srs.Accuracy(totalCorrect, totalAttempts),
			"session_count":         sessionCount,
			"last_studied_at":       lastStudied,
			"completion_percentage": completionPct,
		},
		"flagged_cards":   flagged,
		"recent_sessions": recent,
	})
}

// GET /api/stats/user
func (db *DBHandler) GetUserStats(w http.ResponseWriter, r *http.Request) {
	user, ok := db.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized")
		return
	}

	var decks []models.Deck
	if err := db.Select("id", "public_id", "name").Where("user_id = ?", user.ID).Find(&decks).Error; err != nil {
		log.Printf("GetUserStats: failed to fetch decks for userID=%d: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to fetch statistics")
		return
	}
	deckByID := make(map[uint]*models.Deck, len(decks))
	deckIDs := make([]uint, 0, len(decks))
	for i := range decks {
		deckByID[decks[i].ID] = &decks[i]
		deckIDs = append(deckIDs, decks[i].ID)
	}

	var totalCards int64
	if len(deckIDs) > 0 {
		db.Model(&models.Card{}).Where("deck_id IN ?", deckIDs).Count(&totalCards)
	}

	var stats []models.CardStat
	if err := db.Where("user_id = ?", user.ID).Find(&stats).Error; err != nil {
		log.Printf("GetUserStats: failed to fetch card stats for userID=%d: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to fetch statistics")
		return
	}

	cardsStudied := len(stats)
	totalAttempts, totalCorrect, flaggedCount, bestStreak, streakSum := 0, 0, 0, 0, 0
	var lastActivity *time.Time
	flaggedCardIDs := []uint{}
	statByCardID := make(map[uint]*models.CardStat, len(stats))
	for i := range stats {
		totalAttempts += stats[i].Attempts
		totalCorrect += stats[i].Correct
		streakSum += stats[i].CurrentStreak
		if stats[i].BestStreak > bestStreak {
			bestStreak = stats[i].BestStreak
		}
		if stats[i].Flagged {
			flaggedCount++
			flaggedCardIDs = append(flaggedCardIDs, stats[i].CardID)
		}
		if stats[i].LastReviewedAt != nil && (lastActivity == nil || stats[i].LastReviewedAt.After(*lastActivity)) {
			lastActivity = stats[i].LastReviewedAt
		}
		statByCardID[stats[i].CardID] = &stats[i]
	}

	averageStreak := 0
	if len(stats) > 0 {
		averageStreak = int(math.Round(float64(streakSum) / float64(len(stats))))
	}

	var totalSessions int64
	db.Model(&models.StudySession{}).Where("user_id = ? AND completed = ?", user.ID, true).Count(&totalSessions)

	var completedSessions []models.StudySession
	if err := db.Where("user_id = ? AND completed = ?", user.ID, true).Find(&completedSessions).Error; err != nil {
		log.Printf("GetUserStats: failed to fetch sessions for userID=%d: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to fetch statistics")
		return
	}

	totalStudySeconds := 0
	thirtyDaysAgo := time.Now().AddDate(0, 0, -30)
	activeDays := map[string]struct{}{}
	for i := range completedSessions {
		if completedSessions[i].DurationSeconds != nil {
			totalStudySeconds += *completedSessions[i].DurationSeconds
		}
		if completedSessions[i].CompletedAt != nil && completedSessions[i].CompletedAt.After(thirtyDaysAgo) {
			activeDays[completedSessions[i].CompletedAt.Format("2006-01-02")] = struct{}{}
		}
	}
	totalStudyHours := math.Round(float64(totalStudySeconds)/3600*10) / 10

	// Flagged cards joined with question text and deck names, most recently
	// reviewed first, capped for the overview.
	flagged := []flaggedCardView{}
	if len(flaggedCardIDs) > 0 {
		var flaggedCards []models.Card
		if err := db.Select("id", "public_id", "deck_id", "question").Where("id IN ?", flaggedCardIDs).Find(&flaggedCards).Error; err == nil {
			for i := range flaggedCards {
				stat := statByCardID[flaggedCards[i].ID]
				if stat == nil {
					continue
				}
				view := flaggedCardView{
					CardID:       flaggedCards[i].PublicID,
					Question:     flaggedCards[i].Question,
					Attempts:     stat.Attempts,
					Correct:      stat.Correct,
					Accuracy:     srs.Accuracy(stat.Correct, stat.Attempts),
					LastReviewed: stat.LastReviewedAt,
				}
				if deck := deckByID[flaggedCards[i].DeckID]; deck != nil {
					view.DeckID = deck.PublicID
					view.DeckName = deck.Name
				}
				flagged = append(flagged, view)
			}
		}
		sortFlaggedByRecency(flagged)
		if len(flagged) > userFlaggedCardLimit {
			flagged = flagged[:userFlaggedCardLimit]
		}
	}

	var recentSessions []models.StudySession
	if err := db.Where("user_id = ? AND completed = ?", user.ID, true).
		Order("completed_at desc").Limit(recentSessionLimit).Find(&recentSessions).Error; err != nil {
		log.Printf("GetUserStats: failed to fetch recent sessions for userID=%d: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to fetch statistics")
		return
	}
	recent := make([]sessionView, 0, len(recentSessions))
	for i := range recentSessions {
		view := deckSessionView(&recentSessions[i])
		if deck := deckByID[recentSessions[i].DeckID]; deck != nil {
			view.DeckID = deck.PublicID
			view.DeckName = deck.Name
		}
		recent = append(recent, view)
	}

	studyProgressPct := 0
	if totalCards > 0 {
		studyProgressPct = int(math.Round(float64(cardsStudied) / float64(totalCards) * 100))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"overview": map[string]interface{}{
			"total_decks":               len(decks),
			"total_cards":               totalCards,
			"cards_studied":             cardsStudied,
			"cards_unstudied":           int(totalCards) - cardsStudied,
			"study_progress_percentage": studyProgressPct,
			"flagged_cards":             flaggedCount,
			"total_sessions":            totalSessions,
			"total_study_hours":         totalStudyHours,
			"last_activity":             lastActivity,
			"days_active_last_30":       len(activeDays),
		},
		"performance": map[string]interface{}{
			"total_attempts":         totalAttempts,
			"total_correct":          totalCorrect,
			"overall_accuracy":       srs.Accuracy(totalCorrect, totalAttempts),
			"best_streak":            bestStreak,
			"average_current_streak": averageStreak,
		},
		"flagged_cards":   flagged,
		"recent_sessions": recent,
	})
}

func deckSessionView(s *models.StudySession) sessionView {
	view := sessionView{
		SessionID:    s.PublicID,
		Mode:         s.Mode,
		StartedAt:    s.StartedAt,
		CompletedAt:  s.CompletedAt,
		CardsStudied: s.CardsStudied,
		CardsCorrect: s.CardsCorrect,
		Accuracy:     srs.Accuracy(s.CardsCorrect, s.CardsStudied),
	}
	if s.DurationSeconds != nil {
		minutes := int(math.Round(float64(*s.DurationSeconds) / 60))
		view.DurationMinutes = &minutes
	}
	return view
}

func sortFlaggedByRecency(flagged []flaggedCardView) {
	sort.SliceStable(flagged, func(i, j int) bool {
		a, b := flagged[i].LastReviewed, flagged[j].LastReviewed
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}
