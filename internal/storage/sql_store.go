package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/example/flashbot/pkg/models"
)

// SQLStore persists decks and cards in a relational database through sqlx.
// Supported drivers are "sqlite3" and "postgres".
type SQLStore struct {
	db *sqlx.DB
}

// OpenSQL connects to the database and creates the schema if needed.
func OpenSQL(driver, dsn string) (*SQLStore, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	if driver == "sqlite3" {
		// Enable foreign keys so deck deletion cascades to cards
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return nil, fmt.Errorf("failed to enable foreign keys: %v", err)
		}
		// SQLite doesn't support multiple writers
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	s := &SQLStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// initSchema creates the decks and cards tables if they don't exist.
func (s *SQLStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS decks (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			user_id BIGINT NOT NULL,
			UNIQUE(name, user_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create decks table: %v", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS cards (
			id TEXT PRIMARY KEY,
			deck_id TEXT NOT NULL,
			user_id BIGINT NOT NULL,
			front TEXT NOT NULL,
			back TEXT NOT NULL,
			last_revised TIMESTAMP NOT NULL,
			level INTEGER NOT NULL,
			FOREIGN KEY (deck_id) REFERENCES decks(id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create cards table: %v", err)
	}

	return nil
}

// getDeck resolves a deck by name for a user.
func (s *SQLStore) getDeck(ctx context.Context, userID int64, name string) (models.Deck, error) {
	var deck models.Deck
	query := s.db.Rebind("SELECT id, name FROM decks WHERE name = ? AND user_id = ?")
	err := s.db.GetContext(ctx, &deck, query, name, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Deck{}, ErrNotFound
	}
	if err != nil {
		return models.Deck{}, fmt.Errorf("failed to get deck: %v", err)
	}
	return deck, nil
}

// Decks returns the user's decks sorted by name, without cards.
func (s *SQLStore) Decks(ctx context.Context, userID int64) ([]models.Deck, error) {
	var decks []models.Deck
	query := s.db.Rebind("SELECT id, name FROM decks WHERE user_id = ? ORDER BY name")
	if err := s.db.SelectContext(ctx, &decks, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get decks: %v", err)
	}
	return decks, nil
}

// CreateDeck creates an empty deck with a fresh id.
func (s *SQLStore) CreateDeck(ctx context.Context, userID int64, name string) (models.Deck, error) {
	if _, err := s.getDeck(ctx, userID, name); err == nil {
		return models.Deck{}, ErrDuplicateName
	} else if !errors.Is(err, ErrNotFound) {
		return models.Deck{}, err
	}

	deck := models.Deck{ID: uuid.NewString(), Name: name}
	query := s.db.Rebind("INSERT INTO decks (id, name, user_id) VALUES (?, ?, ?)")
	if _, err := s.db.ExecContext(ctx, query, deck.ID, deck.Name, userID); err != nil {
		return models.Deck{}, fmt.Errorf("failed to create deck: %v", err)
	}
	return deck, nil
}

// DeleteDeck removes a deck; its cards go with it via the foreign key cascade.
func (s *SQLStore) DeleteDeck(ctx context.Context, userID int64, name string) error {
	query := s.db.Rebind("DELETE FROM decks WHERE name = ? AND user_id = ?")
	result, err := s.db.ExecContext(ctx, query, name, userID)
	if err != nil {
		return fmt.Errorf("failed to delete deck: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete deck: %v", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateCard adds a new card at level 0 to the named deck.
func (s *SQLStore) CreateCard(ctx context.Context, userID int64, deckName, front, back string) (models.Card, error) {
	deck, err := s.getDeck(ctx, userID, deckName)
	if err != nil {
		return models.Card{}, err
	}

	card := models.Card{
		ID:          uuid.NewString(),
		Front:       front,
		Back:        back,
		Level:       0,
		LastRevised: time.Now().UTC(),
	}
	query := s.db.Rebind(`
		INSERT INTO cards (id, deck_id, user_id, front, back, last_revised, level)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = s.db.ExecContext(ctx, query, card.ID, deck.ID, userID, card.Front, card.Back, card.LastRevised, card.Level)
	if err != nil {
		return models.Card{}, fmt.Errorf("failed to create card: %v", err)
	}
	return card, nil
}

// DeleteCard removes a single card from the named deck.
func (s *SQLStore) DeleteCard(ctx context.Context, userID int64, deckName, cardID string) error {
	deck, err := s.getDeck(ctx, userID, deckName)
	if err != nil {
		return err
	}

	query := s.db.Rebind("DELETE FROM cards WHERE id = ? AND deck_id = ? AND user_id = ?")
	result, err := s.db.ExecContext(ctx, query, cardID, deck.ID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete card: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete card: %v", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// selectCards runs the review-order query, optionally capped.
func (s *SQLStore) selectCards(ctx context.Context, userID int64, deckName string, limit int) ([]models.Card, error) {
	deck, err := s.getDeck(ctx, userID, deckName)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, front, back, level, last_revised FROM cards
		WHERE deck_id = ? AND user_id = ?
		ORDER BY level ASC, last_revised ASC
	`
	args := []interface{}{deck.ID, userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var cards []models.Card
	if err := s.db.SelectContext(ctx, &cards, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to select cards: %v", err)
	}
	return cards, nil
}

// SelectForReview returns the weakest and longest-unreviewed cards, capped.
func (s *SQLStore) SelectForReview(ctx context.Context, userID int64, deckName string, limit int) ([]models.Card, error) {
	return s.selectCards(ctx, userID, deckName, limit)
}

// SelectAll returns every card of the deck in review order.
func (s *SQLStore) SelectAll(ctx context.Context, userID int64, deckName string) ([]models.Card, error) {
	return s.selectCards(ctx, userID, deckName, 0)
}

// ApplyLevelUpdate sets a card's mastery level and review timestamp.
func (s *SQLStore) ApplyLevelUpdate(ctx context.Context, userID int64, deckName, cardID string, newLevel int, reviewedAt time.Time) error {
	deck, err := s.getDeck(ctx, userID, deckName)
	if err != nil {
		return err
	}

	query := s.db.Rebind(`
		UPDATE cards SET level = ?, last_revised = ?
		WHERE id = ? AND deck_id = ? AND user_id = ?
	`)
	result, err := s.db.ExecContext(ctx, query, newLevel, reviewedAt, cardID, deck.ID, userID)
	if err != nil {
		return fmt.Errorf("failed to update card: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update card: %v", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ImportDeck inserts a deck with its cards verbatim, preserving ids, levels
// and timestamps.
func (s *SQLStore) ImportDeck(ctx context.Context, userID int64, deck models.Deck) error {
	if _, err := s.getDeck(ctx, userID, deck.Name); err == nil {
		return ErrDuplicateName
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	query := tx.Rebind("INSERT INTO decks (id, name, user_id) VALUES (?, ?, ?)")
	if _, err := tx.ExecContext(ctx, query, deck.ID, deck.Name, userID); err != nil {
		return fmt.Errorf("failed to import deck: %v", err)
	}

	query = tx.Rebind(`
		INSERT INTO cards (id, deck_id, user_id, front, back, last_revised, level)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	for _, card := range deck.Cards {
		_, err := tx.ExecContext(ctx, query, card.ID, deck.ID, userID, card.Front, card.Back, card.LastRevised, card.Level)
		if err != nil {
			return fmt.Errorf("failed to import card %s: %v", card.ID, err)
		}
	}

	return tx.Commit()
}

// Users lists every user id with at least one deck.
func (s *SQLStore) Users(ctx context.Context) ([]int64, error) {
	var users []int64
	if err := s.db.SelectContext(ctx, &users, "SELECT DISTINCT user_id FROM decks ORDER BY user_id"); err != nil {
		return nil, fmt.Errorf("failed to list users: %v", err)
	}
	return users, nil
}

// CountDueCards counts cards below the top level last reviewed before the cutoff.
func (s *SQLStore) CountDueCards(ctx context.Context, userID int64, olderThan time.Time) (int, error) {
	var count int
	query := s.db.Rebind("SELECT COUNT(*) FROM cards WHERE user_id = ? AND level < ? AND last_revised < ?")
	if err := s.db.GetContext(ctx, &count, query, userID, models.MaxLevel, olderThan); err != nil {
		return 0, fmt.Errorf("failed to count due cards: %v", err)
	}
	return count, nil
}
