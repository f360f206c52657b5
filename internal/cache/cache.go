// Package cache persists restaurant results, favorites and the last known
// location in a key-value store.
//
// Every operation fails soft: read errors are logged and reported as absent
// data, write errors are logged and dropped.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"swood/backend"
	"swood/internal/clock"
	"swood/internal/utils"
)

// Storage keys
const (
	KeyResult       = "restaurants_cache"
	KeyFavorites    = "favorite_restaurants"
	KeyLastLocation = "last_location"
)

// TTL is how long a cached result stays valid.
const TTL = 24 * time.Hour

// CachedResult is the single persisted query result.
type CachedResult struct {
	Restaurants []backend.Restaurant `json:"restaurants"`
	CapturedAt  time.Time            `json:"-"`
	Latitude    float64              `json:"latitude"`
	Longitude   float64              `json:"longitude"`
	Radius      int                  `json:"radius"`
}

// cachedResultJSON stores the capture time as unix milliseconds
type cachedResultJSON struct {
	Restaurants []backend.Restaurant `json:"restaurants"`
	Timestamp   int64                `json:"timestamp"`
	Latitude    float64              `json:"latitude"`
	Longitude   float64              `json:"longitude"`
	Radius      int                  `json:"radius"`
}

// MarshalJSON implements json.Marshaler.
func (r CachedResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(cachedResultJSON{
		Restaurants: r.Restaurants,
		Timestamp:   r.CapturedAt.UnixMilli(),
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		Radius:      r.Radius,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *CachedResult) UnmarshalJSON(data []byte) error {
	var raw cachedResultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Restaurants = raw.Restaurants
	r.CapturedAt = time.UnixMilli(raw.Timestamp)
	r.Latitude = raw.Latitude
	r.Longitude = raw.Longitude
	r.Radius = raw.Radius
	return nil
}

// Matches reports whether the result was captured for exactly this query.
func (r *CachedResult) Matches(lat, lon float64, radius int) bool {
	return r.Latitude == lat && r.Longitude == lon && r.Radius == radius
}

// LastLocation is the most recent query location.
type LastLocation struct {
	backend.Location
	SavedAt time.Time `json:"-"`
}

type lastLocationJSON struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
}

// Cache wraps a backend.KV with typed, fail-soft accessors.
type Cache struct {
	kv    backend.KV
	clock clock.Clock
}

// New creates a cache over kv. A nil clock means the system clock.
func New(kv backend.KV, clk clock.Clock) *Cache {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Cache{kv: kv, clock: clk}
}

// SaveResult overwrites the result slot, stamped with the current time.
func (c *Cache) SaveResult(ctx context.Context, restaurants []backend.Restaurant, lat, lon float64, radius int) {
	c.write(ctx, KeyResult, CachedResult{
		Restaurants: backend.CloneRestaurants(restaurants),
		CapturedAt:  c.clock.Now(),
		Latitude:    lat,
		Longitude:   lon,
		Radius:      radius,
	})
}

// LoadResult returns the cached result if it is younger than TTL. An expired
// slot is deleted.
func (c *Cache) LoadResult(ctx context.Context) (*CachedResult, bool) {
	var result CachedResult
	if !c.read(ctx, KeyResult, &result) {
		return nil, false
	}

	age := c.clock.Now().Sub(result.CapturedAt)
	if age >= TTL {
		utils.Debugf("cached result expired (age %s), purging", age.Round(time.Second))
		c.delete(ctx, KeyResult)
		return nil, false
	}

	result.Restaurants = backend.CloneRestaurants(result.Restaurants)
	return &result, true
}

// Favorites returns favorites in the order they were first added.
func (c *Cache) Favorites(ctx context.Context) []backend.Restaurant {
	var favorites []backend.Restaurant
	if !c.read(ctx, KeyFavorites, &favorites) {
		return []backend.Restaurant{}
	}
	return backend.CloneRestaurants(favorites)
}

// AddFavorite appends r unless a favorite with the same id exists.
func (c *Cache) AddFavorite(ctx context.Context, r backend.Restaurant) {
	favorites := c.Favorites(ctx)
	if backend.FindRestaurant(favorites, r.ID) != nil {
		return
	}
	c.write(ctx, KeyFavorites, append(favorites, r))
}

// RemoveFavorite removes the favorite with the given id, if any.
func (c *Cache) RemoveFavorite(ctx context.Context, id int64) {
	favorites := c.Favorites(ctx)
	kept := favorites[:0]
	for _, f := range favorites {
		if f.ID != id {
			kept = append(kept, f)
		}
	}
	if len(kept) == len(favorites) {
		return
	}
	c.write(ctx, KeyFavorites, kept)
}

// IsFavorite reports whether id is in the favorites set.
func (c *Cache) IsFavorite(ctx context.Context, id int64) bool {
	return backend.FindRestaurant(c.Favorites(ctx), id) != nil
}

// ToggleFavorite adds or removes r and returns whether it is now a favorite.
func (c *Cache) ToggleFavorite(ctx context.Context, r backend.Restaurant) bool {
	if c.IsFavorite(ctx, r.ID) {
		c.RemoveFavorite(ctx, r.ID)
		return false
	}
	c.AddFavorite(ctx, r)
	return true
}

// SaveLastLocation overwrites the last-location slot.
func (c *Cache) SaveLastLocation(ctx context.Context, lat, lon float64) {
	c.write(ctx, KeyLastLocation, lastLocationJSON{
		Latitude:  lat,
		Longitude: lon,
		Timestamp: c.clock.Now().UnixMilli(),
	})
}

// LoadLastLocation returns the last saved location. It never expires.
func (c *Cache) LoadLastLocation(ctx context.Context) (*LastLocation, bool) {
	var raw lastLocationJSON
	if !c.read(ctx, KeyLastLocation, &raw) {
		return nil, false
	}
	return &LastLocation{
		Location: backend.Location{Latitude: raw.Latitude, Longitude: raw.Longitude},
		SavedAt:  time.UnixMilli(raw.Timestamp),
	}, true
}

// ClearAll removes the result slot, favorites and last location.
func (c *Cache) ClearAll(ctx context.Context) {
	c.delete(ctx, KeyResult, KeyFavorites, KeyLastLocation)
}

func (c *Cache) read(ctx context.Context, key string, v interface{}) bool {
	raw, found, err := c.kv.Get(ctx, key)
	if err != nil {
		utils.Warnf("cache read %s failed: %v", key, err)
		return false
	}
	if !found {
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		utils.Warnf("cache entry %s is corrupt: %v", key, err)
		return false
	}
	return true
}

func (c *Cache) write(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		utils.Warnf("cache encode %s failed: %v", key, err)
		return
	}
	if err := c.kv.Set(ctx, key, string(data)); err != nil {
		utils.Warnf("cache write %s failed: %v", key, err)
	}
}

func (c *Cache) delete(ctx context.Context, keys ...string) {
	if err := c.kv.Delete(ctx, keys...); err != nil {
		utils.Warnf("cache delete failed: %v", err)
	}
}
