package session

import (
	"math/rand"

	"github.com/example/flashbot/pkg/models"
)

// Option is one selectable answer of a choice prompt.
type Option struct {
	Text    string
	Correct bool
}

// Attribute selects which side of a card a choice question drills.
type Attribute func(models.Card) string

// Front returns the card's front text.
func Front(c models.Card) string { return c.Front }

// Back returns the card's back text.
func Back(c models.Card) string { return c.Back }

// generateOptions builds the multiple-choice set for a card: the target's
// value for the attribute plus up to three distinct sibling values, shuffled.
// Sibling values equal to the correct one, or to each other, count once, so
// small decks simply yield a smaller set.
func generateOptions(rnd *rand.Rand, target models.Card, cards []models.Card, attr Attribute) []Option {
	correct := attr(target)
	seen := map[string]bool{correct: true}
	options := []Option{{Text: correct, Correct: true}}

	for _, card := range cards {
		if len(options) == 4 {
			break
		}
		if card.ID == target.ID {
			continue
		}
		value := attr(card)
		if seen[value] {
			continue
		}
		seen[value] = true
		options = append(options, Option{Text: value})
	}

	rnd.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
	return options
}

// matchOptions lists every back of the run in its natural order for the
// step-2 matching question.
func matchOptions(cards []models.Card, correct string) []Option {
	options := make([]Option, 0, len(cards))
	for _, card := range cards {
		options = append(options, Option{Text: card.Back, Correct: card.Back == correct})
	}
	return options
}
