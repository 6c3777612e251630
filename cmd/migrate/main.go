// Command migrate copies every user's decks from the JSON file store into a
// SQL store, preserving card ids, levels and review timestamps. Decks that
// already exist in the target are skipped.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/example/flashbot/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	dataDir := flag.String("data", "data", "directory holding the per-user JSON files")
	driver := flag.String("driver", "postgres", "target database driver (postgres or sqlite3)")
	dsn := flag.String("dsn", os.Getenv("DATABASE_URL"), "target database connection string")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("No target database: set DATABASE_URL or pass -dsn")
	}

	jsonStore, err := storage.NewJSONStore(*dataDir)
	if err != nil {
		log.Fatalf("Failed to open JSON store: %v", err)
	}

	sqlStore, err := storage.OpenSQL(*driver, *dsn)
	if err != nil {
		log.Fatalf("Failed to open SQL store: %v", err)
	}
	defer sqlStore.Close()

	ctx := context.Background()
	users, err := jsonStore.Users(ctx)
	if err != nil {
		log.Fatalf("Failed to list users: %v", err)
	}

	var migrated, skipped int
	for _, userID := range users {
		decks, err := jsonStore.Decks(ctx, userID)
		if err != nil {
			log.Fatalf("Failed to load decks for user %d: %v", userID, err)
		}
		for _, deck := range decks {
			err := sqlStore.ImportDeck(ctx, userID, deck)
			if errors.Is(err, storage.ErrDuplicateName) {
				log.Printf("Skipping deck %q for user %d: already migrated", deck.Name, userID)
				skipped++
				continue
			}
			if err != nil {
				log.Fatalf("Failed to migrate deck %q for user %d: %v", deck.Name, userID, err)
			}
			log.Printf("Migrated deck %q (%d cards) for user %d", deck.Name, len(deck.Cards), userID)
			migrated++
		}
	}

	log.Printf("Done: %d decks migrated, %d skipped", migrated, skipped)
}
