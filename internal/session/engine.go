package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/example/flashbot/internal/storage"
	"github.com/example/flashbot/pkg/models"
)

// Errors surfaced to the presentation layer as guidance messages. None of
// them leaves the engine's in-memory state changed.
var (
	// ErrNoSession indicates the user has no active learning session
	ErrNoSession = errors.New("no active learning session")
	// ErrNoPending indicates a typed reply arrived without a pending card
	ErrNoPending = errors.New("no typed answer is expected")
	// ErrEmptyDeck indicates the deck has no cards to drill
	ErrEmptyDeck = errors.New("no cards available for learning")
)

// Level adjustment thresholds applied at finalization. Both are checked
// independently; a card satisfying both is adjusted in both directions.
const (
	promoteThreshold = 3 // correct answers needed to raise the level
	demoteThreshold  = 4 // incorrect answers needed to lower the level
)

// Prompt describes the next question to render, or the final results once
// the session is done. It is transport-agnostic: the presentation layer maps
// options to buttons and typed prompts to reply requests.
type Prompt struct {
	Step     int
	Card     models.Card
	Question string
	Options  []Option // empty for typed steps
	Typed    bool     // a typed reply is expected instead of a selection
	Done     bool     // session finished; Results holds the summary
	Results  []models.CardResult
}

// Engine drives per-user sessions through the five-step drill and folds the
// results back into card mastery levels.
type Engine struct {
	store    storage.Store
	registry *Registry
	now      func() time.Time
	rnd      *rand.Rand
}

// NewEngine creates an engine backed by the given card store.
func NewEngine(store storage.Store, registry *Registry) *Engine {
	return &Engine{
		store:    store,
		registry: registry,
		now:      time.Now,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Active reports whether the user has a live session.
func (e *Engine) Active(userID int64) bool {
	_, ok := e.registry.Get(userID)
	return ok
}

// Start selects the review cards for the deck, registers a fresh session and
// returns the first prompt. Any previous session for the user is replaced.
func (e *Engine) Start(ctx context.Context, userID int64, deckName string) (*Prompt, error) {
	cards, err := e.store.SelectForReview(ctx, userID, deckName, storage.DefaultReviewLimit)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, ErrEmptyDeck
	}
	e.registry.Start(userID, deckName, cards)
	return e.Advance(ctx, userID)
}

// Advance emits the prompt for the next card, moving to the next step once
// the current one has run out of cards. After the fifth pass it finalizes
// the session and returns the results prompt.
func (e *Engine) Advance(ctx context.Context, userID int64) (*Prompt, error) {
	st, ok := e.registry.Get(userID)
	if !ok {
		return nil, ErrNoSession
	}

	if st.Cursor >= len(st.Cards) {
		st.Cursor = 0
		st.Step++
		if st.Step > stepCount {
			return e.finalize(ctx, userID, st)
		}
	}

	card := st.Cards[st.Cursor]
	st.Cursor++
	return e.prompt(st, card), nil
}

// prompt builds the question for a card at the session's current step. Typed
// steps park the card in Pending until the reply arrives.
func (e *Engine) prompt(st *State, card models.Card) *Prompt {
	p := &Prompt{Step: st.Step, Card: card}

	switch st.Step {
	case StepChoiceBack:
		p.Question = fmt.Sprintf("Step 1: What is the back for: '%s'?", card.Front)
		p.Options = generateOptions(e.rnd, card, st.Cards, Back)
	case StepMatch:
		p.Question = fmt.Sprintf("Step 2: Match the front '%s' with the correct back.", card.Front)
		p.Options = matchOptions(st.Cards, card.Back)
	case StepChoiceFront:
		p.Question = fmt.Sprintf("Step 3: What is the front for: '%s'?", card.Back)
		p.Options = generateOptions(e.rnd, card, st.Cards, Front)
	case StepTypeBack:
		p.Question = fmt.Sprintf("Step 4: Type the back for: '%s'", card.Front)
		p.Typed = true
		st.Pending = &card
	case StepTypeFront:
		p.Question = fmt.Sprintf("Step 5: Type the front for: '%s'", card.Back)
		p.Typed = true
		st.Pending = &card
	}

	return p
}

// Grade records one answer for a card of the active session. Each presented
// question yields exactly one grading event; the presentation layer retires
// the question's buttons after the first selection.
func (e *Engine) Grade(userID int64, cardID string, correct bool) error {
	st, ok := e.registry.Get(userID)
	if !ok {
		return ErrNoSession
	}
	progress, ok := st.Progress[cardID]
	if !ok {
		return fmt.Errorf("card %s is not part of the session", cardID)
	}
	if correct {
		progress.Correct++
	} else {
		progress.Incorrect++
	}
	return nil
}

// SubmitTyped grades a typed reply against the pending card using exact
// string match. It returns whether the reply matched and the expected answer
// so the presentation layer can show it on a miss.
func (e *Engine) SubmitTyped(userID int64, reply string) (correct bool, answer string, err error) {
	st, ok := e.registry.Get(userID)
	if !ok {
		return false, "", ErrNoSession
	}
	if st.Pending == nil {
		return false, "", ErrNoPending
	}

	card := st.Pending
	st.Pending = nil

	if st.Step == StepTypeFront {
		answer = card.Front
	} else {
		answer = card.Back
	}
	correct = reply == answer

	progress := st.Progress[card.ID]
	if correct {
		progress.Correct++
	} else {
		progress.Incorrect++
	}
	return correct, answer, nil
}

// Abandon discards the user's session without persisting any mastery
// changes. Abandoning with no session is a no-op.
func (e *Engine) Abandon(userID int64) {
	e.registry.Discard(userID)
}

// finalize applies the level thresholds to every drilled card, persists the
// changed cards and discards the session. It runs at most once per session.
// Failed saves are retried once and then reported alongside the results so
// computed level changes are never silently dropped.
func (e *Engine) finalize(ctx context.Context, userID int64, st *State) (*Prompt, error) {
	if st.finalized {
		return nil, ErrNoSession
	}
	st.finalized = true

	now := e.now()
	results := make([]models.CardResult, 0, len(st.Cards))
	var failed []string

	for i := range st.Cards {
		card := &st.Cards[i]
		progress := st.Progress[card.ID]

		level := card.Level
		if progress.Correct >= promoteThreshold && level < models.MaxLevel {
			level++
		}
		if progress.Incorrect >= demoteThreshold && level > 0 {
			level--
		}

		if level != card.Level {
			err := e.store.ApplyLevelUpdate(ctx, userID, st.DeckName, card.ID, level, now)
			if err != nil {
				err = e.store.ApplyLevelUpdate(ctx, userID, st.DeckName, card.ID, level, now)
			}
			if err != nil {
				log.Printf("Error saving level for card %s: %v", card.ID, err)
				failed = append(failed, card.Front)
			} else {
				card.Level = level
				card.LastRevised = now
			}
		}

		results = append(results, models.CardResult{
			Card:      *card,
			Correct:   progress.Correct,
			Incorrect: progress.Incorrect,
			Level:     level,
		})
	}

	e.registry.Discard(userID)

	p := &Prompt{Done: true, Results: results}
	if len(failed) > 0 {
		return p, fmt.Errorf("failed to save level changes for: %s", strings.Join(failed, ", "))
	}
	return p, nil
}
