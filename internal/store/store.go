// Package store holds the in-memory restaurant state shared by every screen
// and notifies subscribers on each change.
package store

import (
	"math"
	"sync"
	"time"

	"swood/backend"
	"swood/internal/clock"
)

const (
	// FreshFor is how long fetched data is trusted without revalidation
	FreshFor = 30 * time.Minute

	// LocationThreshold is the per-axis shift in degrees (about 100m) that
	// counts as a new location
	LocationThreshold = 0.001
)

// State is a snapshot of the store. Snapshots never alias store internals.
type State struct {
	Restaurants []backend.Restaurant
	Loading     bool
	Err         string // empty when there is no error
	LastFetch   *time.Time
	Location    *backend.Location
}

// HasError reports whether an error message is set
func (s State) HasError() bool { return s.Err != "" }

func (s State) clone() State {
	out := State{
		Restaurants: backend.CloneRestaurants(s.Restaurants),
		Loading:     s.Loading,
		Err:         s.Err,
	}
	if s.LastFetch != nil {
		t := *s.LastFetch
		out.LastFetch = &t
	}
	if s.Location != nil {
		loc := *s.Location
		out.Location = &loc
	}
	return out
}

// Listener receives a snapshot after every state change
type Listener func(State)

type subscription struct {
	id int
	fn Listener
}

// Store is the observable state container. Construct one per process with
// New and pass it to consumers.
type Store struct {
	mu        sync.Mutex
	state     State
	clock     clock.Clock
	listeners []subscription
	nextID    int
}

// New creates an empty store
func New(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Store{
		state: State{Restaurants: []backend.Restaurant{}},
		clock: clk,
	}
}

// State returns a snapshot of the current state
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// SetRestaurants replaces the list, clears loading and error, and stamps
// lastFetch with the current time.
func (s *Store) SetRestaurants(list []backend.Restaurant, loc backend.Location) {
	s.update(func(st *State) {
		now := s.clock.Now()
		st.Restaurants = backend.CloneRestaurants(list)
		st.Loading = false
		st.Err = ""
		st.LastFetch = &now
		st.Location = &loc
	})
}

// SetLoading sets the loading flag only
func (s *Store) SetLoading(loading bool) {
	s.update(func(st *State) {
		st.Loading = loading
	})
}

// SetError sets the error message and clears loading
func (s *Store) SetError(msg string) {
	s.update(func(st *State) {
		st.Err = msg
		st.Loading = false
	})
}

// Reset restores the initial empty state
func (s *Store) Reset() {
	s.update(func(st *State) {
		*st = State{Restaurants: []backend.Restaurant{}}
	})
}

// IsFresh reports whether data was fetched less than FreshFor ago
func (s *Store) IsFresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.LastFetch == nil {
		return false
	}
	return s.clock.Now().Sub(*s.state.LastFetch) < FreshFor
}

// HasLocationChanged reports whether lat/lon differs from the stored location
// by more than LocationThreshold on either axis. Always true when no location
// is stored.
func (s *Store) HasLocationChanged(lat, lon float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc := s.state.Location
	if loc == nil {
		return true
	}
	return math.Abs(loc.Latitude-lat) > LocationThreshold ||
		math.Abs(loc.Longitude-lon) > LocationThreshold
}

// Subscribe registers fn and returns a function that removes it. The returned
// function may be called from inside fn and more than once.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, subscription{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.listeners {
			if sub.id == id {
				// Copy so a notification pass holding the old slice is unaffected
				next := make([]subscription, 0, len(s.listeners)-1)
				next = append(next, s.listeners[:i]...)
				s.listeners = append(next, s.listeners[i+1:]...)
				return
			}
		}
	}
}

// update applies fn under the lock, then notifies listeners outside it in
// registration order.
func (s *Store) update(fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	snapshot := s.state
	listeners := s.listeners
	s.mu.Unlock()

	for _, sub := range listeners {
		sub.fn(snapshot.clone())
	}
}
