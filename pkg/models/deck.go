package models

// Deck is a named collection of cards owned by one user
type Deck struct {
	ID    string `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Cards []Card `json:"cards"`
}
