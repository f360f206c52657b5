package store_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swood/backend"
	"swood/internal/clock"
	"swood/internal/store"
)

var paris = backend.Location{Latitude: 48.8566, Longitude: 2.3522}

func newTestStore() (*store.Store, *clock.Fake) {
	clk := clock.NewFake(time.Date(2026, 5, 1, 19, 30, 0, 0, time.UTC))
	return store.New(clk), clk
}

func sample() []backend.Restaurant {
	return []backend.Restaurant{
		{ID: 1, Name: "Le Central", Latitude: 48.8567, Longitude: 2.3521, Cuisine: "french"},
		{ID: 2, Name: "Chez Marcel", Latitude: 48.8570, Longitude: 2.3530},
	}
}

// =============================================================================
// Transition Tests
// =============================================================================

func TestInitialState(t *testing.T) {
	s, _ := newTestStore()
	st := s.State()

	assert.Empty(t, st.Restaurants)
	assert.NotNil(t, st.Restaurants)
	assert.False(t, st.Loading)
	assert.False(t, st.HasError())
	assert.Nil(t, st.LastFetch)
	assert.Nil(t, st.Location)
	assert.False(t, s.IsFresh())
}

func TestSetRestaurants(t *testing.T) {
	s, clk := newTestStore()
	s.SetLoading(true)
	s.SetError("boom")

	s.SetRestaurants(sample(), paris)
	st := s.State()

	assert.Equal(t, sample(), st.Restaurants)
	assert.False(t, st.Loading)
	assert.Empty(t, st.Err)
	require.NotNil(t, st.LastFetch)
	assert.True(t, st.LastFetch.Equal(clk.Now()))
	require.NotNil(t, st.Location)
	assert.Equal(t, paris, *st.Location)
}

func TestSetLoadingLeavesOtherFields(t *testing.T) {
	s, _ := newTestStore()
	s.SetRestaurants(sample(), paris)
	s.SetError("offline")

	s.SetLoading(true)
	st := s.State()

	assert.True(t, st.Loading)
	assert.Equal(t, "offline", st.Err)
	assert.Len(t, st.Restaurants, 2)
}

func TestSetErrorClearsLoading(t *testing.T) {
	s, _ := newTestStore()
	s.SetRestaurants(sample(), paris)
	s.SetLoading(true)

	s.SetError("fetch failed")
	st := s.State()

	assert.False(t, st.Loading)
	assert.Equal(t, "fetch failed", st.Err)
	assert.Len(t, st.Restaurants, 2, "restaurants survive an error")
}

func TestReset(t *testing.T) {
	s, _ := newTestStore()
	s.SetRestaurants(sample(), paris)
	s.SetError("x")

	s.Reset()
	st := s.State()

	assert.Empty(t, st.Restaurants)
	assert.Empty(t, st.Err)
	assert.Nil(t, st.LastFetch)
	assert.Nil(t, st.Location)
	assert.True(t, s.HasLocationChanged(paris.Latitude, paris.Longitude))
}

func TestSnapshotsDoNotAlias(t *testing.T) {
	s, _ := newTestStore()
	input := sample()
	s.SetRestaurants(input, paris)

	input[0].Name = "changed by caller"
	snap := s.State()
	snap.Restaurants[1].Name = "changed by reader"
	snap.Location.Latitude = 0

	again := s.State()
	assert.Equal(t, "Le Central", again.Restaurants[0].Name)
	assert.Equal(t, "Chez Marcel", again.Restaurants[1].Name)
	assert.Equal(t, paris.Latitude, again.Location.Latitude)
}

// =============================================================================
// Freshness Tests
// =============================================================================

func TestIsFresh(t *testing.T) {
	s, clk := newTestStore()
	s.SetRestaurants(sample(), paris)

	assert.True(t, s.IsFresh(), "fresh right after SetRestaurants")

	clk.Advance(29 * time.Minute)
	assert.True(t, s.IsFresh())

	clk.Advance(2 * time.Minute)
	assert.False(t, s.IsFresh(), "stale after 31 minutes")
}

func TestIsFreshIgnoresLoadingAndErrors(t *testing.T) {
	s, clk := newTestStore()
	s.SetRestaurants(sample(), paris)
	clk.Advance(10 * time.Minute)
	s.SetLoading(true)
	s.SetError("x")

	assert.True(t, s.IsFresh())
}

func TestHasLocationChanged(t *testing.T) {
	s, _ := newTestStore()
	assert.True(t, s.HasLocationChanged(paris.Latitude, paris.Longitude), "no stored location")

	s.SetRestaurants(sample(), paris)

	tests := []struct {
		name       string
		dLat, dLon float64
		want       bool
	}{
		{"same point", 0, 0, false},
		{"small shift both axes", 0.0005, 0.0005, false},
		{"small negative shift", -0.0005, -0.0005, false},
		{"latitude only", 0.002, 0, true},
		{"longitude only", 0, 0.002, true},
		{"negative latitude", -0.002, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.HasLocationChanged(paris.Latitude+tt.dLat, paris.Longitude+tt.dLon)
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// Subscription Tests
// =============================================================================

func TestSubscribeOrderAndSnapshots(t *testing.T) {
	s, _ := newTestStore()
	var calls []string

	s.Subscribe(func(st store.State) {
		calls = append(calls, "first")
		st.Restaurants = nil
	})
	s.Subscribe(func(st store.State) {
		calls = append(calls, "second")
		assert.True(t, st.Loading)
	})

	s.SetLoading(true)

	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestUnsubscribe(t *testing.T) {
	s, _ := newTestStore()
	count := 0
	unsubscribe := s.Subscribe(func(store.State) { count++ })

	s.SetLoading(true)
	unsubscribe()
	unsubscribe()
	s.SetLoading(false)

	assert.Equal(t, 1, count)
}

// TestUnsubscribeFromCallback covers removal during a notification pass
func TestUnsubscribeFromCallback(t *testing.T) {
	s, _ := newTestStore()
	var calls []string

	var unsubscribeA func()
	unsubscribeA = s.Subscribe(func(store.State) {
		calls = append(calls, "a")
		unsubscribeA()
	})
	s.Subscribe(func(store.State) {
		calls = append(calls, "b")
	})

	s.SetLoading(true)
	assert.Equal(t, []string{"a", "b"}, calls, "current pass reaches every listener")

	s.SetLoading(false)
	assert.Equal(t, []string{"a", "b", "b"}, calls, "a is gone from the next pass")
}

func TestListenerCanReadStore(t *testing.T) {
	s, _ := newTestStore()
	var seen store.State
	s.Subscribe(func(store.State) {
		seen = s.State()
	})

	s.SetRestaurants(sample(), paris)

	assert.Len(t, seen.Restaurants, 2)
}
