package backend

import (
	"context"
)

// Restaurant is a point of interest tagged as a restaurant.
// Values are never mutated after construction.
type Restaurant struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Cuisine   string  `json:"cuisine,omitempty"`
	Phone     string  `json:"phone,omitempty"`
	Website   string  `json:"website,omitempty"`
	Address   string  `json:"address,omitempty"`
	City      string  `json:"city,omitempty"`
}

// Location is a latitude/longitude pair in decimal degrees.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DefaultRadius is the search radius in meters used for every query.
const DefaultRadius = 1000

// Source fetches restaurants around a point.
type Source interface {
	FetchNearby(ctx context.Context, lat, lon float64, radiusMeters int) ([]Restaurant, error)
}

// KV is a durable string-keyed store.
// Get reports found=false for a missing key without error.
type KV interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// CloneRestaurants returns an independent copy of rs. A nil input yields an
// empty, non-nil slice.
func CloneRestaurants(rs []Restaurant) []Restaurant {
	out := make([]Restaurant, len(rs))
	copy(out, rs)
	return out
}

// FindRestaurant searches rs for id. Returns nil if no match is found.
func FindRestaurant(rs []Restaurant, id int64) *Restaurant {
	for _, r := range rs {
		if r.ID == id {
			found := r
			return &found
		}
	}
	return nil
}
