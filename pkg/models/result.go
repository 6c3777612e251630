package models

// CardResult summarizes one card after a completed learning session
type CardResult struct {
	Card      Card // card with the adjusted level applied
	Correct   int
	Incorrect int
	Level     int // mastery level after adjustment
}
