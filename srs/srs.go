// Package srs implements the spaced-repetition state update applied after
// every card attempt: an SM-2-style ease factor, a suggested review interval,
// and streak bookkeeping. The interval is recorded for the caller but nothing
// in this service schedules reviews from it.
package srs

import (
	"math"
	"math/rand"
)

const (
	// InitialEase is the ease factor a card starts with.
	InitialEase = 2.5
	// MinEase is the floor the ease factor can never drop below.
	MinEase = 1.3

	easeReward  = 0.1
	easePenalty = 0.2
)

// State is the per-(user, card) mastery state the update operates on.
type State struct {
	Attempts      int
	Correct       int
	CurrentStreak int
	BestStreak    int
	EaseFactor    float64
	IntervalDays  int
}

// NewState returns the state used for a card that has never been reviewed.
func NewState() State {
	return State{EaseFactor: InitialEase}
}

// Review returns the state after one attempt. The receiver is not modified.
//
// On a correct answer the ease factor grows by 0.1 and the interval follows
// the SM-2 ladder: 1 day on the first streak step, 6 days on the second,
// then previous interval times the new ease. An incorrect answer resets the
// streak and interval and costs 0.2 ease. The ease factor is clamped at
// MinEase in both directions.
func (s State) Review(correct bool) State {
	next := s
	next.Attempts++

	if correct {
		next.Correct++
		next.CurrentStreak++
		next.EaseFactor = math.Max(MinEase, s.EaseFactor+easeReward)
		switch next.CurrentStreak {
		case 1:
			next.IntervalDays = 1
		case 2:
			next.IntervalDays = 6
		default:
			next.IntervalDays = int(math.Round(float64(s.IntervalDays) * next.EaseFactor))
		}
	} else {
		next.CurrentStreak = 0
		next.EaseFactor = math.Max(MinEase, s.EaseFactor-easePenalty)
		next.IntervalDays = 0
	}

	if next.CurrentStreak > next.BestStreak {
		next.BestStreak = next.CurrentStreak
	}
	return next
}

// Accuracy returns the rounded percentage of correct answers, and 0 when
// there are no attempts so callers never divide by zero.
func Accuracy(correct, attempts int) int {
	if attempts <= 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(attempts) * 100))
}

// ShuffleOptions returns a Fisher-Yates shuffled copy of the answer options
// and the new index of the option that was at correctIndex. The input slice
// is left untouched.
func ShuffleOptions(options []string, correctIndex int) ([]string, int) {
	shuffled := make([]string, len(options))
	copy(shuffled, options)

	newCorrect := correctIndex
	for i := len(shuffled) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		switch newCorrect {
		case i:
			newCorrect = j
		case j:
			newCorrect = i
		}
	}
	return shuffled, newCorrect
}
