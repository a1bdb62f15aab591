package sink

import (
	"sort"
	"sync"
	"time"

	"github.com/extra-connectors/tpbridge/pkg/events"
)

// State is one stored value.
type State struct {
	ID        string    `json:"id"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store keeps the latest value of every state in memory and announces
// changes on an event hub. It backs the daemon's HTTP API.
type Store struct {
	mu     *sync.RWMutex
	states map[string]State
	hub    *events.EventHub
	now    func() time.Time
}

// NewStore creates a Store. hub may be nil.
func NewStore(hub *events.EventHub) *Store {
	return &Store{
		mu:     &sync.RWMutex{},
		states: make(map[string]State),
		hub:    hub,
		now:    time.Now,
	}
}

func (s *Store) UpdateState(id, value string) {
	now := s.now()

	s.mu.Lock()
	s.states[id] = State{ID: id, Value: value, UpdatedAt: now}
	s.mu.Unlock()

	s.hub.Publish(events.StateUpdated, events.StateUpdatedEvent{
		ID:    id,
		Value: value,
		Ts:    now.Unix(),
	})
}

// Get returns the state with the given id.
func (s *Store) Get(id string) (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[id]
	return st, ok
}

// List returns all states sorted by id.
func (s *Store) List() []State {
	s.mu.RLock()
	ret := make([]State, 0, len(s.states))
	for _, st := range s.states {
		ret = append(ret, st)
	}
	s.mu.RUnlock()

	sort.Slice(ret, func(i, j int) bool {
		return ret[i].ID < ret[j].ID
	})
	return ret
}
