package bot

// Config represents the configuration for the bot
type Config struct {
	// Number of decks shown per page in the deck picker
	DecksPerPage int
	// Number of cards shown per page in the card delete picker
	CardsPerPage int
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() *Config {
	return &Config{
		DecksPerPage: 5,
		CardsPerPage: 5,
	}
}
