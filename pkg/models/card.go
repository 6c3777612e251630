package models

import "time"

// MaxLevel is the highest mastery level a card can reach.
const MaxLevel = 6

// Card is a single front/back flashcard with a mastery level
type Card struct {
	ID          string    `json:"id" db:"id"`
	Front       string    `json:"front" db:"front"`
	Back        string    `json:"back" db:"back"`
	Level       int       `json:"level" db:"level"` // 0-6 mastery scale
	LastRevised time.Time `json:"last_revised" db:"last_revised"`
}
