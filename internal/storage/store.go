package storage

import (
	"context"
	"errors"
	"time"

	"github.com/example/flashbot/pkg/models"
)

// Sentinel errors shared by every store implementation. Callers branch on
// them with errors.Is to turn persistence misses into user guidance.
var (
	// ErrNotFound indicates the requested deck or card does not exist
	ErrNotFound = errors.New("not found")
	// ErrDuplicateName indicates a deck with the same name already exists
	ErrDuplicateName = errors.New("duplicate name")
)

// DefaultReviewLimit caps how many cards a single learning session drills.
const DefaultReviewLimit = 6

// Store is the persistence contract consumed by the session engine and the
// bot. All data is keyed by the opaque per-user identifier.
type Store interface {
	// Decks returns the user's decks sorted by name. Cards may be omitted.
	Decks(ctx context.Context, userID int64) ([]models.Deck, error)
	// CreateDeck creates an empty deck. Returns ErrDuplicateName if the
	// user already has a deck with that name.
	CreateDeck(ctx context.Context, userID int64, name string) (models.Deck, error)
	// DeleteDeck removes a deck and all its cards.
	DeleteDeck(ctx context.Context, userID int64, name string) error

	// CreateCard adds a new card at level 0 to the named deck.
	CreateCard(ctx context.Context, userID int64, deckName, front, back string) (models.Card, error)
	// DeleteCard removes a single card from the named deck.
	DeleteCard(ctx context.Context, userID int64, deckName, cardID string) error

	// SelectForReview returns up to limit cards sorted ascending by
	// (level, last_revised): weakest and longest-unreviewed cards first.
	SelectForReview(ctx context.Context, userID int64, deckName string, limit int) ([]models.Card, error)
	// SelectAll returns every card of the deck in the same order, uncapped.
	SelectAll(ctx context.Context, userID int64, deckName string) ([]models.Card, error)

	// ApplyLevelUpdate persists a card's adjusted mastery level and stamps
	// last_revised with reviewedAt.
	ApplyLevelUpdate(ctx context.Context, userID int64, deckName, cardID string, newLevel int, reviewedAt time.Time) error

	// ImportDeck inserts a deck with its cards verbatim, preserving ids,
	// levels and timestamps. Used by the migration tool.
	ImportDeck(ctx context.Context, userID int64, deck models.Deck) error

	// Users lists every user id known to the store.
	Users(ctx context.Context) ([]int64, error)
	// CountDueCards counts cards below the top level whose last review is
	// older than the cutoff, across all the user's decks.
	CountDueCards(ctx context.Context, userID int64, olderThan time.Time) (int, error)
}
