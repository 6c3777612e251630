package session

import (
	"sync"

	"github.com/example/flashbot/pkg/models"
)

// Drill steps, in the fixed order every session walks through.
const (
	StepChoiceBack  = 1 // multiple choice over backs
	StepMatch       = 2 // match the front against every back in the run
	StepChoiceFront = 3 // multiple choice over fronts
	StepTypeBack    = 4 // type the back
	StepTypeFront   = 5 // type the front

	stepCount = 5
)

// Progress tallies graded answers for one card within a session.
type Progress struct {
	Correct   int
	Incorrect int
}

// State is one user's active drill run. The card set is snapshotted at
// session start; store mutations during the run do not affect it.
type State struct {
	DeckName string
	Cards    []models.Card
	Step     int
	Cursor   int
	Progress map[string]*Progress
	Pending  *models.Card // card awaiting a typed reply (steps 4-5)

	finalized bool
}

func newState(deckName string, cards []models.Card) *State {
	st := &State{
		DeckName: deckName,
		Cards:    cards,
		Step:     StepChoiceBack,
		Progress: make(map[string]*Progress, len(cards)),
	}
	for _, card := range cards {
		st.Progress[card.ID] = &Progress{}
	}
	return st
}

// Registry holds at most one live session per user. A single user's actions
// are expected to arrive serialized by the transport; the mutex only guards
// the map against access from different users' goroutines.
type Registry struct {
	mu       sync.Mutex
	sessions map[int64]*State
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]*State)}
}

// Start registers a fresh session for the user, replacing any previous one.
func (r *Registry) Start(userID int64, deckName string, cards []models.Card) *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := newState(deckName, cards)
	r.sessions[userID] = st
	return st
}

// Get returns the user's live session, if any.
func (r *Registry) Get(userID int64) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.sessions[userID]
	return st, ok
}

// Discard drops the user's session without persisting anything. Discarding a
// user with no session is a no-op.
func (r *Registry) Discard(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
}
