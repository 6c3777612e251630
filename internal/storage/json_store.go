package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/flashbot/pkg/models"
)

// JSONStore keeps one JSON file per user under a data directory. Every
// mutation rewrites the user's whole file, which is fine for the
// single-writer model the bot runs under.
type JSONStore struct {
	dir string
}

// NewJSONStore creates the data directory if needed and returns a store.
func NewJSONStore(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}
	return &JSONStore{dir: dir}, nil
}

func (s *JSONStore) path(userID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.json", userID))
}

// load reads the user's decks. A missing file means the user has no decks yet.
func (s *JSONStore) load(userID int64) ([]models.Deck, error) {
	data, err := os.ReadFile(s.path(userID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read decks: %v", err)
	}
	var decks []models.Deck
	if err := json.Unmarshal(data, &decks); err != nil {
		return nil, fmt.Errorf("failed to parse decks: %v", err)
	}
	return decks, nil
}

func (s *JSONStore) save(userID int64, decks []models.Deck) error {
	data, err := json.MarshalIndent(decks, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode decks: %v", err)
	}
	if err := os.WriteFile(s.path(userID), data, 0644); err != nil {
		return fmt.Errorf("failed to write decks: %v", err)
	}
	return nil
}

func findDeck(decks []models.Deck, name string) *models.Deck {
	for i := range decks {
		if decks[i].Name == name {
			return &decks[i]
		}
	}
	return nil
}

// Decks returns the user's decks sorted by name, cards included.
func (s *JSONStore) Decks(ctx context.Context, userID int64) ([]models.Deck, error) {
	decks, err := s.load(userID)
	if err != nil {
		return nil, err
	}
	sort.Slice(decks, func(i, j int) bool { return decks[i].Name < decks[j].Name })
	return decks, nil
}

// CreateDeck creates an empty deck with a fresh id.
func (s *JSONStore) CreateDeck(ctx context.Context, userID int64, name string) (models.Deck, error) {
	decks, err := s.load(userID)
	if err != nil {
		return models.Deck{}, err
	}
	if findDeck(decks, name) != nil {
		return models.Deck{}, ErrDuplicateName
	}
	deck := models.Deck{ID: uuid.NewString(), Name: name}
	decks = append(decks, deck)
	if err := s.save(userID, decks); err != nil {
		return models.Deck{}, err
	}
	return deck, nil
}

// DeleteDeck removes the named deck and all its cards.
func (s *JSONStore) DeleteDeck(ctx context.Context, userID int64, name string) error {
	decks, err := s.load(userID)
	if err != nil {
		return err
	}
	kept := decks[:0]
	found := false
	for _, deck := range decks {
		if deck.Name == name {
			found = true
			continue
		}
		kept = append(kept, deck)
	}
	if !found {
		return ErrNotFound
	}
	return s.save(userID, kept)
}

// CreateCard appends a new card at level 0 to the named deck.
func (s *JSONStore) CreateCard(ctx context.Context, userID int64, deckName, front, back string) (models.Card, error) {
	decks, err := s.load(userID)
	if err != nil {
		return models.Card{}, err
	}
	deck := findDeck(decks, deckName)
	if deck == nil {
		return models.Card{}, ErrNotFound
	}
	card := models.Card{
		ID:          uuid.NewString(),
		Front:       front,
		Back:        back,
		Level:       0,
		LastRevised: time.Now().UTC(),
	}
	deck.Cards = append(deck.Cards, card)
	if err := s.save(userID, decks); err != nil {
		return models.Card{}, err
	}
	return card, nil
}

// DeleteCard removes a single card from the named deck.
func (s *JSONStore) DeleteCard(ctx context.Context, userID int64, deckName, cardID string) error {
	decks, err := s.load(userID)
	if err != nil {
		return err
	}
	deck := findDeck(decks, deckName)
	if deck == nil {
		return ErrNotFound
	}
	kept := deck.Cards[:0]
	found := false
	for _, card := range deck.Cards {
		if card.ID == cardID {
			found = true
			continue
		}
		kept = append(kept, card)
	}
	if !found {
		return ErrNotFound
	}
	deck.Cards = kept
	return s.save(userID, decks)
}

// sortForReview orders cards ascending by (level, last_revised), keeping the
// stored order for ties.
func sortForReview(cards []models.Card) []models.Card {
	sorted := make([]models.Card, len(cards))
	copy(sorted, cards)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Level != sorted[j].Level {
			return sorted[i].Level < sorted[j].Level
		}
		return sorted[i].LastRevised.Before(sorted[j].LastRevised)
	})
	return sorted
}

// SelectForReview returns the weakest and longest-unreviewed cards, capped.
func (s *JSONStore) SelectForReview(ctx context.Context, userID int64, deckName string, limit int) ([]models.Card, error) {
	cards, err := s.SelectAll(ctx, userID, deckName)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(cards) > limit {
		cards = cards[:limit]
	}
	return cards, nil
}

// SelectAll returns every card of the deck in review order.
func (s *JSONStore) SelectAll(ctx context.Context, userID int64, deckName string) ([]models.Card, error) {
	decks, err := s.load(userID)
	if err != nil {
		return nil, err
	}
	deck := findDeck(decks, deckName)
	if deck == nil {
		return nil, ErrNotFound
	}
	return sortForReview(deck.Cards), nil
}

// ApplyLevelUpdate sets a card's mastery level and review timestamp.
func (s *JSONStore) ApplyLevelUpdate(ctx context.Context, userID int64, deckName, cardID string, newLevel int, reviewedAt time.Time) error {
	decks, err := s.load(userID)
	if err != nil {
		return err
	}
	deck := findDeck(decks, deckName)
	if deck == nil {
		return ErrNotFound
	}
	for i := range deck.Cards {
		if deck.Cards[i].ID == cardID {
			deck.Cards[i].Level = newLevel
			deck.Cards[i].LastRevised = reviewedAt
			return s.save(userID, decks)
		}
	}
	return ErrNotFound
}

// ImportDeck inserts a deck with its cards verbatim.
func (s *JSONStore) ImportDeck(ctx context.Context, userID int64, deck models.Deck) error {
	decks, err := s.load(userID)
	if err != nil {
		return err
	}
	if findDeck(decks, deck.Name) != nil {
		return ErrDuplicateName
	}
	decks = append(decks, deck)
	return s.save(userID, decks)
}

// Users lists every user with a deck file in the data directory.
func (s *JSONStore) Users(ctx context.Context) ([]int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %v", err)
	}
	var users []int64
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(name, ".json"), 10, 64)
		if err != nil {
			continue
		}
		users = append(users, id)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, nil
}

// CountDueCards counts cards below the top level last reviewed before the cutoff.
func (s *JSONStore) CountDueCards(ctx context.Context, userID int64, olderThan time.Time) (int, error) {
	decks, err := s.load(userID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, deck := range decks {
		for _, card := range deck.Cards {
			if card.Level < models.MaxLevel && card.LastRevised.Before(olderThan) {
				count++
			}
		}
	}
	return count, nil
}
