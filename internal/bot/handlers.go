package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/flashbot/internal/excel"
	"github.com/example/flashbot/internal/session"
	"github.com/example/flashbot/internal/storage"
	"github.com/example/flashbot/pkg/models"
)

// Conversation states for typed management input
const (
	stateAwaitDeckName       = "waiting_for_deck_name"
	stateAwaitDeleteDeckName = "waiting_for_delete_deck_name"
	stateAwaitCardFront      = "waiting_for_card_front"
	stateAwaitCardBack       = "waiting_for_card_back"
)

// handleUpdate handles incoming updates from Telegram
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message != nil {
		if update.Message.IsCommand() {
			b.handleCommand(ctx, update.Message)
		} else {
			b.handleText(ctx, update.Message)
		}
		return
	}
	if update.CallbackQuery != nil {
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

// handleCommand handles bot commands
func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID

	switch message.Command() {
	case "start":
		msg := tgbotapi.NewMessage(chatID, "Welcome to Flashcards Bot!\nUse /help to see commands.")
		b.send(msg)
	case "help":
		b.send(tgbotapi.NewMessage(chatID, allCommands()))
	case "menu":
		// Switching to deck management drops any running session silently
		b.engine.Abandon(userID)
		b.showMainMenu(chatID)
	case "list":
		b.engine.Abandon(userID)
		b.handleListDecks(ctx, chatID, userID)
	case "import":
		b.engine.Abandon(userID)
		b.handleImportCommand(ctx, message)
	default:
		msg := tgbotapi.NewMessage(chatID, "Unknown command. Use /menu to show the main menu.")
		msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
		b.send(msg)
	}
}

func allCommands() string {
	return `/start - Start the bot
/help - Show available commands
/menu - Show menu
/list - List all decks
/import <file> - Import cards into the current deck from .xlsx or .csv`
}

// handleListDecks shows the paginated deck picker
func (b *Bot) handleListDecks(ctx context.Context, chatID, userID int64) {
	decks, err := b.store.Decks(ctx, userID)
	if err != nil {
		log.Printf("Error listing decks for user %d: %v", userID, err)
		b.send(tgbotapi.NewMessage(chatID, "❌ Error loading your decks. Please try again."))
		return
	}
	if len(decks) == 0 {
		b.send(tgbotapi.NewMessage(chatID, "No decks available."))
		b.showMainMenu(chatID)
		return
	}

	msg := tgbotapi.NewMessage(chatID, "Pick a Deck")
	msg.ReplyMarkup = b.deckPickerKeyboard(decks, 0)
	b.send(msg)
}

// deckPickerKeyboard builds one page of the deck picker
func (b *Bot) deckPickerKeyboard(decks []models.Deck, page int) tgbotapi.InlineKeyboardMarkup {
	perPage := b.config.DecksPerPage
	totalPages := (len(decks) - 1) / perPage
	if page < 0 {
		page = 0
	}
	if page > totalPages {
		page = totalPages
	}

	start := page * perPage
	end := start + perPage
	if end > len(decks) {
		end = len(decks)
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, deck := range decks[start:end] {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(deck.Name, "deck_"+deck.ID),
		))
	}

	var nav []tgbotapi.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️ Previous", fmt.Sprintf("page_%d", page-1)))
	}
	if page < totalPages {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("➡️ Next", fmt.Sprintf("page_%d", page+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// cardPickerKeyboard builds one page of the card delete picker
func (b *Bot) cardPickerKeyboard(cards []models.Card, page int) tgbotapi.InlineKeyboardMarkup {
	perPage := b.config.CardsPerPage
	totalPages := (len(cards) - 1) / perPage
	if page < 0 {
		page = 0
	}
	if page > totalPages {
		page = totalPages
	}

	start := page * perPage
	end := start + perPage
	if end > len(cards) {
		end = len(cards)
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, card := range cards[start:end] {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(card.Front+" : "+card.Back, "delete_card_"+card.ID),
		))
	}

	var nav []tgbotapi.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️ Previous", fmt.Sprintf("page_ce_%d", page-1)))
	}
	if page < totalPages {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("➡️ Next", fmt.Sprintf("page_ce_%d", page+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// handleCallbackQuery handles callback queries from buttons
func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		log.Printf("Error answering callback query: %v", err)
	}

	userID := query.From.ID
	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID
	data := query.Data

	switch {
	case data == "main_menu":
		b.engine.Abandon(userID)
		b.showMainMenu(chatID)

	case data == "command_add_deck":
		b.engine.Abandon(userID)
		b.setState(userID, stateAwaitDeckName)
		b.forceReply(chatID, "Enter Deck Name")

	case data == "command_delete_deck":
		b.engine.Abandon(userID)
		b.setState(userID, stateAwaitDeleteDeckName)
		b.forceReply(chatID, "Enter Deck Name that you want to DELETE")

	case data == "command_add_cards_to_deck":
		b.engine.Abandon(userID)
		deckName, ok := b.currentDeck[userID]
		if !ok {
			b.send(tgbotapi.NewMessage(chatID, "Pick a deck first with /list."))
			return
		}
		b.setState(userID, stateAwaitCardFront)
		b.forceReply(chatID, "Type in FRONT (Deck: "+deckName+")")

	case data == "command_delete_cards_in_deck":
		b.engine.Abandon(userID)
		b.showCardPicker(ctx, chatID, messageID, userID, 0)

	case strings.HasPrefix(data, "page_ce_"):
		page, err := strconv.Atoi(strings.TrimPrefix(data, "page_ce_"))
		if err != nil {
			log.Printf("Error parsing card page: %v", err)
			return
		}
		b.showCardPicker(ctx, chatID, messageID, userID, page)

	case data == "command_switch_deck":
		b.engine.Abandon(userID)
		b.showDeckPicker(ctx, chatID, messageID, userID, 0)

	case strings.HasPrefix(data, "page_"):
		page, err := strconv.Atoi(strings.TrimPrefix(data, "page_"))
		if err != nil {
			log.Printf("Error parsing deck page: %v", err)
			return
		}
		b.showDeckPicker(ctx, chatID, messageID, userID, page)

	case data == "command_learn_deck":
		b.handleLearnDeck(ctx, chatID, userID)

	case strings.HasPrefix(data, "deck_"):
		b.handleDeckSelected(ctx, chatID, messageID, userID, strings.TrimPrefix(data, "deck_"))

	case strings.HasPrefix(data, "delete_card_"):
		b.handleDeleteCard(ctx, chatID, messageID, userID, strings.TrimPrefix(data, "delete_card_"))

	case strings.HasPrefix(data, "correct_"):
		b.handleChoiceAnswer(ctx, query, strings.TrimPrefix(data, "correct_"), true)

	case strings.HasPrefix(data, "incorrect_"):
		b.handleChoiceAnswer(ctx, query, strings.TrimPrefix(data, "incorrect_"), false)
	}
}

// showDeckPicker renders a deck picker page over the callback's message
func (b *Bot) showDeckPicker(ctx context.Context, chatID int64, messageID int, userID int64, page int) {
	decks, err := b.store.Decks(ctx, userID)
	if err != nil {
		log.Printf("Error listing decks for user %d: %v", userID, err)
		return
	}
	if len(decks) == 0 {
		b.send(tgbotapi.NewEditMessageText(chatID, messageID, "No decks available."))
		b.showMainMenu(chatID)
		return
	}
	b.send(tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, "Pick a Deck", b.deckPickerKeyboard(decks, page)))
}

// showCardPicker renders a card delete picker page over the callback's message
func (b *Bot) showCardPicker(ctx context.Context, chatID int64, messageID int, userID int64, page int) {
	deckName, ok := b.currentDeck[userID]
	if !ok {
		b.send(tgbotapi.NewMessage(chatID, "Pick a deck first with /list."))
		return
	}

	cards, err := b.store.SelectAll(ctx, userID, deckName)
	if err != nil {
		log.Printf("Error listing cards for user %d: %v", userID, err)
		return
	}
	if len(cards) == 0 {
		b.send(tgbotapi.NewEditMessageText(chatID, messageID, "Deck "+deckName+" has no cards."))
		b.showDeckMenu(chatID, deckName)
		return
	}
	b.send(tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID,
		"Delete card from Deck "+deckName, b.cardPickerKeyboard(cards, page)))
}

// handleDeckSelected records the user's current deck and shows its menu
func (b *Bot) handleDeckSelected(ctx context.Context, chatID int64, messageID int, userID int64, deckID string) {
	decks, err := b.store.Decks(ctx, userID)
	if err != nil {
		log.Printf("Error listing decks for user %d: %v", userID, err)
		return
	}
	for _, deck := range decks {
		if deck.ID == deckID {
			b.currentDeck[userID] = deck.Name
			b.send(tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID,
				"Current Deck: "+deck.Name, createKeyboard(b.DeckMenuButtons())))
			return
		}
	}
	b.send(tgbotapi.NewMessage(chatID, "That deck no longer exists."))
	b.handleListDecks(ctx, chatID, userID)
}

// handleDeleteCard removes a card and refreshes the picker
func (b *Bot) handleDeleteCard(ctx context.Context, chatID int64, messageID int, userID int64, cardID string) {
	deckName, ok := b.currentDeck[userID]
	if !ok {
		b.send(tgbotapi.NewMessage(chatID, "Pick a deck first with /list."))
		return
	}

	if err := b.store.DeleteCard(ctx, userID, deckName, cardID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.send(tgbotapi.NewMessage(chatID, "Card not found in Deck "+deckName+"."))
		} else {
			log.Printf("Error deleting card %s: %v", cardID, err)
			b.send(tgbotapi.NewMessage(chatID, "❌ Error deleting the card. Please try again."))
		}
		return
	}

	b.send(tgbotapi.NewMessage(chatID, "Card has been deleted from Deck "+deckName+"."))
	b.showCardPicker(ctx, chatID, messageID, userID, 0)
}

// handleLearnDeck starts a learning session over the current deck
func (b *Bot) handleLearnDeck(ctx context.Context, chatID, userID int64) {
	deckName, ok := b.currentDeck[userID]
	if !ok {
		b.send(tgbotapi.NewMessage(chatID, "Pick a deck first with /list."))
		return
	}

	prompt, err := b.engine.Start(ctx, userID, deckName)
	if err != nil {
		if errors.Is(err, session.ErrEmptyDeck) || errors.Is(err, storage.ErrNotFound) {
			b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("No cards available for learning in deck '%s'.", deckName)))
		} else {
			log.Printf("Error starting session for user %d: %v", userID, err)
			b.send(tgbotapi.NewMessage(chatID, "❌ Error starting the session. Please try again."))
		}
		return
	}

	b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("Starting learning session for deck '%s'.", deckName)))
	b.sendPrompt(chatID, prompt)
}

// handleChoiceAnswer grades a selected option and moves the session forward.
// Editing the question message retires its buttons, so each presented
// question grades exactly once.
func (b *Bot) handleChoiceAnswer(ctx context.Context, query *tgbotapi.CallbackQuery, cardID string, correct bool) {
	userID := query.From.ID
	chatID := query.Message.Chat.ID

	if err := b.engine.Grade(userID, cardID, correct); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			b.send(tgbotapi.NewMessage(chatID, "No active learning session. Pick a deck and hit Learn to start."))
		} else {
			log.Printf("Error grading answer for user %d: %v", userID, err)
		}
		return
	}

	feedback := "Incorrect. ❌"
	if correct {
		feedback = "Correct! ✅"
	}
	b.send(tgbotapi.NewEditMessageText(chatID, query.Message.MessageID, feedback))

	b.advance(ctx, chatID, userID)
}

// advance asks the engine for the next prompt and renders it
func (b *Bot) advance(ctx context.Context, chatID, userID int64) {
	prompt, err := b.engine.Advance(ctx, userID)
	if prompt != nil {
		if prompt.Done {
			b.sendResults(chatID, userID, prompt.Results)
		} else {
			b.sendPrompt(chatID, prompt)
		}
	}
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			b.send(tgbotapi.NewMessage(chatID, "No active learning session. Pick a deck and hit Learn to start."))
			return
		}
		// Partial persistence after finalization: the results above still
		// carry the computed levels, so surface the failed saves.
		log.Printf("Error advancing session for user %d: %v", userID, err)
		b.send(tgbotapi.NewMessage(chatID, "⚠️ "+err.Error()))
	}
}

// sendPrompt renders a question prompt: a choice keyboard or a typed reply request
func (b *Bot) sendPrompt(chatID int64, prompt *session.Prompt) {
	if prompt.Typed {
		b.forceReply(chatID, prompt.Question)
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, option := range prompt.Options {
		data := "incorrect_" + prompt.Card.ID
		if option.Correct {
			data = "correct_" + prompt.Card.ID
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(option.Text, data),
		))
	}

	msg := tgbotapi.NewMessage(chatID, prompt.Question)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.send(msg)
}

// sendResults shows the end-of-session summary and the deck menu
func (b *Bot) sendResults(chatID, userID int64, results []models.CardResult) {
	var sb strings.Builder
	sb.WriteString("Learning Session Complete! Results:\n")
	for _, r := range results {
		sb.WriteString(fmt.Sprintf("Card '%s' - Correct: %d, Incorrect: %d, Level: %d\n", r.Card.Front, r.Correct, r.Incorrect, r.Level))
	}
	if deckName, ok := b.currentDeck[userID]; ok {
		sb.WriteString("Current Deck: " + deckName)
	}

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = createKeyboard(b.DeckMenuButtons())
	b.send(msg)
}

// handleText routes non-command text: typed session answers first, then
// pending management input.
func (b *Bot) handleText(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID
	text := message.Text

	correct, answer, err := b.engine.SubmitTyped(userID, text)
	if err == nil {
		if correct {
			b.send(tgbotapi.NewMessage(chatID, "Correct! ✅"))
		} else {
			b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("Incorrect. The correct answer is: %s ❌", answer)))
		}
		b.advance(ctx, chatID, userID)
		return
	}
	if !errors.Is(err, session.ErrNoSession) && !errors.Is(err, session.ErrNoPending) {
		log.Printf("Error submitting typed answer for user %d: %v", userID, err)
	}

	state, exists := b.userStates[userID]
	if !exists {
		b.showMainMenu(chatID)
		return
	}

	switch state.State {
	case stateAwaitDeckName:
		delete(b.userStates, userID)
		if _, err := b.store.CreateDeck(ctx, userID, text); err != nil {
			if errors.Is(err, storage.ErrDuplicateName) {
				b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("Deck '%s' already exists.", text)))
			} else {
				log.Printf("Error creating deck for user %d: %v", userID, err)
				b.send(tgbotapi.NewMessage(chatID, "❌ Error creating the deck. Please try again."))
			}
			return
		}
		b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("Deck '%s' created.", text)))

	case stateAwaitDeleteDeckName:
		delete(b.userStates, userID)
		if err := b.store.DeleteDeck(ctx, userID, text); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("Deck '%s' not found.", text)))
			} else {
				log.Printf("Error deleting deck for user %d: %v", userID, err)
				b.send(tgbotapi.NewMessage(chatID, "❌ Error deleting the deck. Please try again."))
			}
			return
		}
		if b.currentDeck[userID] == text {
			delete(b.currentDeck, userID)
		}
		b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("Deck '%s' deleted.", text)))

	case stateAwaitCardFront:
		deckName, ok := b.currentDeck[userID]
		if !ok {
			delete(b.userStates, userID)
			b.send(tgbotapi.NewMessage(chatID, "Pick a deck first with /list."))
			return
		}
		state.State = stateAwaitCardBack
		state.Data["front"] = text
		b.userStates[userID] = state
		b.forceReply(chatID, "Type in BACK (Deck: "+deckName+")")

	case stateAwaitCardBack:
		deckName, ok := b.currentDeck[userID]
		if !ok {
			delete(b.userStates, userID)
			b.send(tgbotapi.NewMessage(chatID, "Pick a deck first with /list."))
			return
		}
		front := state.Data["front"]
		if _, err := b.store.CreateCard(ctx, userID, deckName, front, text); err != nil {
			delete(b.userStates, userID)
			log.Printf("Error creating card for user %d: %v", userID, err)
			b.send(tgbotapi.NewMessage(chatID, "❌ Error adding the card. Please try again."))
			return
		}
		b.send(tgbotapi.NewMessage(chatID, "Card has been added to Deck "+deckName+" and saved."))
		// Keep the add loop going until the user switches away
		b.setState(userID, stateAwaitCardFront)
		b.forceReply(chatID, "Type in FRONT (Deck: "+deckName+")")

	default:
		delete(b.userStates, userID)
		b.showMainMenu(chatID)
	}
}

// handleImportCommand imports cards from an .xlsx or .csv file on disk into
// the user's current deck.
func (b *Bot) handleImportCommand(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID

	deckName, ok := b.currentDeck[userID]
	if !ok {
		b.send(tgbotapi.NewMessage(chatID, "Pick a deck first with /list."))
		return
	}

	path := strings.TrimSpace(message.CommandArguments())
	if path == "" {
		b.send(tgbotapi.NewMessage(chatID, "Usage: /import <file.xlsx|file.csv>"))
		return
	}

	config := excel.DefaultImportConfig()
	config.FilePath = path
	result, err := excel.ImportCards(ctx, b.store, userID, deckName, config)
	if err != nil {
		log.Printf("Error importing cards for user %d: %v", userID, err)
		b.send(tgbotapi.NewMessage(chatID, "❌ Import failed: "+err.Error()))
		return
	}

	summary := fmt.Sprintf("✅ Imported %d of %d rows into Deck %s.", result.Created, result.TotalProcessed, deckName)
	if len(result.Errors) > 0 {
		summary += fmt.Sprintf("\n❌ Errors (%d):\n- %s", len(result.Errors), strings.Join(result.Errors, "\n- "))
	}
	b.send(tgbotapi.NewMessage(chatID, summary))
}

// setState records a pending conversational input for a user
func (b *Bot) setState(userID int64, state string) {
	b.userStates[userID] = UserState{
		State:     state,
		Timestamp: time.Now(),
		Data:      make(map[string]string),
	}
}

// forceReply asks the user for a typed reply to the given prompt
func (b *Bot) forceReply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.ForceReply{ForceReply: true}
	b.send(msg)
}
