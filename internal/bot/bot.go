package bot

import (
	"context"
	"fmt"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/flashbot/internal/session"
	"github.com/example/flashbot/internal/storage"
)

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// UserState tracks a pending conversational input from a user, such as a
// deck name or the front of a card being added.
type UserState struct {
	State     string
	Timestamp time.Time
	Data      map[string]string
}

// Bot wires the Telegram transport to the card store and the session engine.
type Bot struct {
	api         *tgbotapi.BotAPI
	store       storage.Store
	engine      *session.Engine
	config      *Config
	userStates  map[int64]UserState
	currentDeck map[int64]string
}

// New creates a new bot instance
func New(token string, store storage.Store, engine *session.Engine) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("unable to create bot: %v", err)
	}

	return &Bot{
		api:         api,
		store:       store,
		engine:      engine,
		config:      DefaultConfig(),
		userStates:  make(map[int64]UserState),
		currentDeck: make(map[int64]string),
	}, nil
}

// Start runs the update loop until the context is cancelled. Updates are
// handled inline, one at a time: the session engine relies on a single
// user's actions arriving in order.
func (b *Bot) Start(ctx context.Context) error {
	log.Printf("Authorized on account %s", b.api.Self.UserName)

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// SendReminder implements the scheduler.Notifier interface. For private
// chats the chat id equals the user id.
func (b *Bot) SendReminder(userID int64, count int) error {
	cardForm := "cards"
	if count == 1 {
		cardForm = "card"
	}
	msg := tgbotapi.NewMessage(userID, fmt.Sprintf("You have %d %s ready for review! Open /list and pick a deck to learn.", count, cardForm))
	_, err := b.api.Send(msg)
	if err != nil {
		log.Printf("Error sending reminder to user %d: %v", userID, err)
	}
	return err
}

// send delivers a message and logs delivery failures.
func (b *Bot) send(msg tgbotapi.Chattable) {
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

// MainMenuButtons returns the buttons for the main menu
func (b *Bot) MainMenuButtons() [][]MenuButton {
	return [][]MenuButton{
		{
			{Text: "List Decks", CallbackData: "command_switch_deck"},
			{Text: "Add a Deck", CallbackData: "command_add_deck"},
		},
	}
}

// DeckMenuButtons returns the buttons shown once a deck is selected
func (b *Bot) DeckMenuButtons() [][]MenuButton {
	return [][]MenuButton{
		{
			{Text: "Switch Deck", CallbackData: "command_switch_deck"},
			{Text: "Learn", CallbackData: "command_learn_deck"},
		},
		{
			{Text: "Add Cards", CallbackData: "command_add_cards_to_deck"},
			{Text: "Delete Cards", CallbackData: "command_delete_cards_in_deck"},
		},
		{
			{Text: "Add a Deck", CallbackData: "command_add_deck"},
			{Text: "Delete a Deck", CallbackData: "command_delete_deck"},
		},
	}
}

// showMainMenu shows the main menu
func (b *Bot) showMainMenu(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "Menu")
	msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
	b.send(msg)
}

// showDeckMenu shows the menu for the user's current deck
func (b *Bot) showDeckMenu(chatID int64, deckName string) {
	msg := tgbotapi.NewMessage(chatID, "Current Deck: "+deckName)
	msg.ReplyMarkup = createKeyboard(b.DeckMenuButtons())
	b.send(msg)
}
