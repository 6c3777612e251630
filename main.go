package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/example/flashbot/internal/bot"
	"github.com/example/flashbot/internal/scheduler"
	"github.com/example/flashbot/internal/session"
	"github.com/example/flashbot/internal/storage"
)

func main() {
	// Load .env if present; real env vars win
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN environment variable is not set")
	}

	store, err := openStore()
	if err != nil {
		log.Fatalf("Failed to open card store: %v", err)
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	engine := session.NewEngine(store, session.NewRegistry())

	b, err := bot.New(token, store, engine)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if os.Getenv("ENABLE_SCHEDULER") != "false" {
		s := scheduler.New(store, b)
		s.Start()
		defer s.Stop()
	}

	// Cancel the context on Ctrl+C or SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v", sig)
		cancel()
	}()

	log.Println("Bot started. Press Ctrl+C to stop.")
	if err := b.Start(ctx); err != nil && err != context.Canceled {
		log.Printf("Bot error: %v", err)
	}
	log.Println("Bot stopped successfully")
}

// openStore picks the card store variant from the environment: the JSON file
// store by default, or a SQL store when STORAGE is sqlite/postgres.
func openStore() (storage.Store, error) {
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	switch os.Getenv("STORAGE") {
	case "sqlite":
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, err
		}
		return storage.OpenSQL("sqlite3", filepath.Join(dataDir, "flashbot.db"))
	case "postgres":
		return storage.OpenSQL("postgres", os.Getenv("DATABASE_URL"))
	default:
		return storage.NewJSONStore(dataDir)
	}
}
