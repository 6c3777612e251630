package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/flashbot/internal/storage"
	"github.com/example/flashbot/pkg/models"
)

const testUser int64 = 42

// fakeStore serves a fixed card set and records level updates. failSaves
// makes the next n ApplyLevelUpdate calls fail.
type fakeStore struct {
	cards      []models.Card
	saves      map[string]int
	levels     map[string]int
	reviewedAt map[string]time.Time
	failSaves  int
}

func newFakeStore(cards ...models.Card) *fakeStore {
	return &fakeStore{
		cards:      cards,
		saves:      make(map[string]int),
		levels:     make(map[string]int),
		reviewedAt: make(map[string]time.Time),
	}
}

func (f *fakeStore) SelectForReview(ctx context.Context, userID int64, deckName string, limit int) ([]models.Card, error) {
	cards := f.cards
	if limit > 0 && len(cards) > limit {
		cards = cards[:limit]
	}
	out := make([]models.Card, len(cards))
	copy(out, cards)
	return out, nil
}

func (f *fakeStore) ApplyLevelUpdate(ctx context.Context, userID int64, deckName, cardID string, newLevel int, reviewedAt time.Time) error {
	f.saves[cardID]++
	if f.failSaves > 0 {
		f.failSaves--
		return errors.New("store unavailable")
	}
	f.levels[cardID] = newLevel
	f.reviewedAt[cardID] = reviewedAt
	return nil
}

func (f *fakeStore) Decks(ctx context.Context, userID int64) ([]models.Deck, error) { return nil, nil }
func (f *fakeStore) CreateDeck(ctx context.Context, userID int64, name string) (models.Deck, error) {
	return models.Deck{}, nil
}
func (f *fakeStore) DeleteDeck(ctx context.Context, userID int64, name string) error { return nil }
func (f *fakeStore) CreateCard(ctx context.Context, userID int64, deckName, front, back string) (models.Card, error) {
	return models.Card{}, nil
}
func (f *fakeStore) DeleteCard(ctx context.Context, userID int64, deckName, cardID string) error {
	return nil
}
func (f *fakeStore) SelectAll(ctx context.Context, userID int64, deckName string) ([]models.Card, error) {
	return f.SelectForReview(ctx, userID, deckName, 0)
}
func (f *fakeStore) ImportDeck(ctx context.Context, userID int64, deck models.Deck) error {
	return nil
}
func (f *fakeStore) Users(ctx context.Context) ([]int64, error) { return nil, nil }
func (f *fakeStore) CountDueCards(ctx context.Context, userID int64, olderThan time.Time) (int, error) {
	return 0, nil
}

var _ storage.Store = (*fakeStore)(nil)

func card(id, front, back string, level int) models.Card {
	return models.Card{ID: id, Front: front, Back: back, Level: level}
}

func newTestEngine(store storage.Store) *Engine {
	e := NewEngine(store, NewRegistry())
	e.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

// drive answers every prompt of a running session. correctSteps maps card id
// to the steps answered correctly; every other presentation is answered
// wrong. It stops on the results prompt or on an Advance error.
func drive(t *testing.T, e *Engine, p *Prompt, correctSteps map[string]map[int]bool) (*Prompt, error) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if p.Done {
			return p, nil
		}

		correct := correctSteps[p.Card.ID][p.Step]
		if p.Typed {
			reply := "definitely wrong"
			if correct {
				if p.Step == StepTypeBack {
					reply = p.Card.Back
				} else {
					reply = p.Card.Front
				}
			}
			got, _, err := e.SubmitTyped(testUser, reply)
			require.NoError(t, err)
			require.Equal(t, correct, got)
		} else {
			require.NoError(t, e.Grade(testUser, p.Card.ID, correct))
		}

		var err error
		p, err = e.Advance(ctx, testUser)
		if err != nil {
			return p, err
		}
	}
	t.Fatal("session did not terminate")
	return nil, nil
}

func TestStartEmptyDeck(t *testing.T) {
	e := newTestEngine(newFakeStore())
	_, err := e.Start(context.Background(), testUser, "empty")
	assert.ErrorIs(t, err, ErrEmptyDeck)
	assert.False(t, e.Active(testUser))
}

func TestAdvanceWithoutSession(t *testing.T) {
	e := newTestEngine(newFakeStore(card("a", "dog", "Hund", 0)))
	_, err := e.Advance(context.Background(), testUser)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSubmitTypedWithoutPending(t *testing.T) {
	e := newTestEngine(newFakeStore(card("a", "dog", "Hund", 0)))
	_, err := e.Start(context.Background(), testUser, "animals")
	require.NoError(t, err)

	// First prompt is a choice step, so no typed answer is expected yet
	_, _, err = e.SubmitTyped(testUser, "Hund")
	assert.ErrorIs(t, err, ErrNoPending)
}

func TestFiveStepWalkthrough(t *testing.T) {
	store := newFakeStore(
		card("a", "dog", "Hund", 0),
		card("b", "cat", "Katze", 0),
	)
	e := newTestEngine(store)
	ctx := context.Background()

	p, err := e.Start(ctx, testUser, "animals")
	require.NoError(t, err)

	var steps []int
	var cardIDs []string
	lastStep := 0
	for i := 0; i < 100 && !p.Done; i++ {
		steps = append(steps, p.Step)
		cardIDs = append(cardIDs, p.Card.ID)

		st, ok := e.registry.Get(testUser)
		require.True(t, ok)
		assert.GreaterOrEqual(t, st.Step, lastStep, "step must never decrease")
		assert.LessOrEqual(t, st.Cursor, len(st.Cards))
		assert.Len(t, st.Progress, len(st.Cards))
		lastStep = st.Step

		if p.Typed {
			_, _, err := e.SubmitTyped(testUser, p.Card.Back)
			require.NoError(t, err)
		} else {
			require.NoError(t, e.Grade(testUser, p.Card.ID, true))
		}
		p, err = e.Advance(ctx, testUser)
		require.NoError(t, err)
	}

	require.True(t, p.Done, "five passes over the cards must terminate")
	assert.Equal(t, []int{1, 1, 2, 2, 3, 3, 4, 4, 5, 5}, steps)
	assert.Equal(t, []string{"a", "b", "a", "b", "a", "b", "a", "b", "a", "b"}, cardIDs)
	require.Len(t, p.Results, 2)
	assert.False(t, e.Active(testUser))
}

func TestPromotionAfterThreeCorrect(t *testing.T) {
	store := newFakeStore(
		card("a", "dog", "Hund", 0),
		card("b", "cat", "Katze", 0),
	)
	e := newTestEngine(store)

	p, err := e.Start(context.Background(), testUser, "animals")
	require.NoError(t, err)

	// Card a: 3 correct, 2 incorrect -> promoted. Card b: 2 correct,
	// 3 incorrect -> neither threshold reached, untouched.
	p, err = drive(t, e, p, map[string]map[int]bool{
		"a": {1: true, 4: true, 5: true},
		"b": {1: true, 2: true},
	})
	require.NoError(t, err)
	require.True(t, p.Done)

	assert.Equal(t, 1, store.levels["a"])
	assert.Equal(t, 1, store.saves["a"])
	assert.Zero(t, store.saves["b"], "unchanged cards must not be persisted")
	assert.Equal(t, e.now(), store.reviewedAt["a"])

	byID := map[string]models.CardResult{}
	for _, r := range p.Results {
		byID[r.Card.ID] = r
	}
	assert.Equal(t, 1, byID["a"].Level)
	assert.Equal(t, 3, byID["a"].Correct)
	assert.Equal(t, 2, byID["a"].Incorrect)
	assert.Equal(t, 0, byID["b"].Level)
}

func TestDemotionAfterFourIncorrect(t *testing.T) {
	store := newFakeStore(
		card("x", "dog", "Hund", 3),
		card("z", "cat", "Katze", 0),
	)
	e := newTestEngine(store)

	p, err := e.Start(context.Background(), testUser, "animals")
	require.NoError(t, err)

	// Card x: 1 correct, 4 incorrect -> demoted. Card z: all wrong but
	// already at the floor, so it never drops below 0.
	p, err = drive(t, e, p, map[string]map[int]bool{
		"x": {5: true},
	})
	require.NoError(t, err)
	require.True(t, p.Done)

	assert.Equal(t, 2, store.levels["x"])
	assert.Zero(t, store.saves["z"])

	byID := map[string]models.CardResult{}
	for _, r := range p.Results {
		byID[r.Card.ID] = r
	}
	assert.Equal(t, 2, byID["x"].Level)
	assert.Equal(t, 0, byID["z"].Level)
	assert.Equal(t, 5, byID["z"].Incorrect)
}

func TestLevelCeiling(t *testing.T) {
	store := newFakeStore(card("a", "dog", "Hund", models.MaxLevel))
	e := newTestEngine(store)

	p, err := e.Start(context.Background(), testUser, "animals")
	require.NoError(t, err)

	p, err = drive(t, e, p, map[string]map[int]bool{
		"a": {1: true, 2: true, 3: true, 4: true, 5: true},
	})
	require.NoError(t, err)
	require.True(t, p.Done)

	assert.Zero(t, store.saves["a"])
	assert.Equal(t, models.MaxLevel, p.Results[0].Level)
}

func TestDualThresholdNetsToNoChange(t *testing.T) {
	store := newFakeStore(card("a", "dog", "Hund", 3))
	e := newTestEngine(store)
	ctx := context.Background()

	p, err := e.Start(ctx, testUser, "animals")
	require.NoError(t, err)

	// Push the tally over both thresholds, then walk the remaining
	// prompts without grading them.
	for i := 0; i < 3; i++ {
		require.NoError(t, e.Grade(testUser, "a", true))
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, e.Grade(testUser, "a", false))
	}
	for i := 0; i < 100 && !p.Done; i++ {
		p, err = e.Advance(ctx, testUser)
		require.NoError(t, err)
	}

	require.True(t, p.Done)
	assert.Zero(t, store.saves["a"], "promotion and demotion cancel out")
	assert.Equal(t, 3, p.Results[0].Level)
	assert.Equal(t, 3, p.Results[0].Correct)
	assert.Equal(t, 4, p.Results[0].Incorrect)
}

func TestFinalizeRunsOnce(t *testing.T) {
	store := newFakeStore(card("a", "dog", "Hund", 0))
	e := newTestEngine(store)

	p, err := e.Start(context.Background(), testUser, "animals")
	require.NoError(t, err)

	p, err = drive(t, e, p, map[string]map[int]bool{
		"a": {1: true, 2: true, 3: true, 4: true, 5: true},
	})
	require.NoError(t, err)
	require.True(t, p.Done)
	assert.Equal(t, 1, store.saves["a"])

	// The session is gone once finalized
	_, err = e.Advance(context.Background(), testUser)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.False(t, e.Active(testUser))
}

func TestAbandonMidSession(t *testing.T) {
	store := newFakeStore(
		card("a", "dog", "Hund", 2),
		card("b", "cat", "Katze", 2),
	)
	e := newTestEngine(store)
	ctx := context.Background()

	p, err := e.Start(ctx, testUser, "animals")
	require.NoError(t, err)

	// Answer into step 2, then walk away
	for p.Step < StepMatch {
		require.NoError(t, e.Grade(testUser, p.Card.ID, true))
		p, err = e.Advance(ctx, testUser)
		require.NoError(t, err)
	}

	e.Abandon(testUser)
	assert.False(t, e.Active(testUser))
	assert.Empty(t, store.saves, "abandonment must not persist anything")

	// Abandoning again is a no-op
	e.Abandon(testUser)
}

func TestPartialPersistenceIsReported(t *testing.T) {
	store := newFakeStore(card("a", "dog", "Hund", 0))
	store.failSaves = 2 // first attempt and its retry both fail
	e := newTestEngine(store)

	p, err := e.Start(context.Background(), testUser, "animals")
	require.NoError(t, err)

	p, err = drive(t, e, p, map[string]map[int]bool{
		"a": {1: true, 2: true, 3: true, 4: true, 5: true},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dog")
	assert.Equal(t, 2, store.saves["a"], "failed save must be retried once")

	// The computed result is still reported alongside the failure
	require.NotNil(t, p)
	require.True(t, p.Done)
	assert.Equal(t, 1, p.Results[0].Level)
	assert.False(t, e.Active(testUser))
}

func TestSingleCardSession(t *testing.T) {
	store := newFakeStore(card("a", "dog", "Hund", 0))
	e := newTestEngine(store)
	ctx := context.Background()

	p, err := e.Start(ctx, testUser, "animals")
	require.NoError(t, err)

	for i := 0; i < 100 && !p.Done; i++ {
		if p.Step == StepChoiceBack || p.Step == StepChoiceFront {
			require.Len(t, p.Options, 1, "no distractors exist for a single card")
			assert.True(t, p.Options[0].Correct)
		}
		if p.Typed {
			_, _, err := e.SubmitTyped(testUser, "whatever")
			require.NoError(t, err)
		} else {
			require.NoError(t, e.Grade(testUser, p.Card.ID, true))
		}
		p, err = e.Advance(ctx, testUser)
		require.NoError(t, err)
	}
	require.True(t, p.Done)
}

func TestRegistryReplaceAndDiscard(t *testing.T) {
	r := NewRegistry()

	first := r.Start(testUser, "animals", []models.Card{card("a", "dog", "Hund", 0)})
	second := r.Start(testUser, "verbs", []models.Card{card("b", "go", "gehen", 0)})

	st, ok := r.Get(testUser)
	require.True(t, ok)
	assert.Same(t, second, st)
	assert.NotSame(t, first, st)
	assert.Equal(t, "verbs", st.DeckName)

	r.Discard(testUser)
	_, ok = r.Get(testUser)
	assert.False(t, ok)

	r.Discard(testUser) // no-op
}
