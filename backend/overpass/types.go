package overpass

import (
	"fmt"
	"time"

	"swood/backend"
)

// Response is the top-level Overpass JSON document.
// Elements is a pointer so a missing field can be told apart from an empty array.
type Response struct {
	Elements *[]Element `json:"elements"`
}

// Element is a node or way returned by the API
type Element struct {
	ID     int64             `json:"id"`
	Type   string            `json:"type,omitempty"`
	Lat    *float64          `json:"lat,omitempty"`
	Lon    *float64          `json:"lon,omitempty"`
	Center *Center           `json:"center,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// Center is the centroid Overpass attaches to ways with "out center"
type Center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Normalize drops unnamed elements and maps the rest to restaurants,
// preserving order.
func Normalize(elements []Element) []backend.Restaurant {
	out := make([]backend.Restaurant, 0, len(elements))
	for _, el := range elements {
		name := el.Tags["name"]
		if name == "" {
			continue
		}
		lat, lon := el.coordinates()
		out = append(out, backend.Restaurant{
			ID:        el.ID,
			Name:      name,
			Latitude:  lat,
			Longitude: lon,
			Cuisine:   el.Tags["cuisine"],
			Phone:     el.Tags["phone"],
			Website:   el.Tags["website"],
			Address:   el.Tags["addr:street"],
			City:      el.Tags["addr:city"],
		})
	}
	return out
}

// coordinates prefers the element's own position, then its center, then 0
func (el Element) coordinates() (lat, lon float64) {
	if el.Lat != nil {
		lat = *el.Lat
	} else if el.Center != nil {
		lat = el.Center.Lat
	}
	if el.Lon != nil {
		lon = *el.Lon
	} else if el.Center != nil {
		lon = el.Center.Lon
	}
	return lat, lon
}

// NetworkError is a transport-level failure (DNS, refused connection, timeout)
type NetworkError struct {
	Err error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("overpass request failed: %v", e.Err)
}

// Unwrap returns the transport error.
func (e *NetworkError) Unwrap() error { return e.Err }

// APIError is a non-success HTTP status from the API
type APIError struct {
	StatusCode int
	Status     string
	Body       string
	Temporary  bool          // 503 Service Unavailable or 429 Too Many Requests
	RetryAfter time.Duration // Server-requested wait, 0 if none
}

// RetryDelay lets the retry machine honor Retry-After
func (e *APIError) RetryDelay() time.Duration {
	return e.RetryAfter
}

// Error implements the error interface.
func (e *APIError) Error() string {
	status := e.Status
	if status == "" {
		status = fmt.Sprintf("%d", e.StatusCode)
	}
	if e.Temporary {
		return fmt.Sprintf("overpass temporarily unavailable (HTTP %s)", status)
	}
	if e.Body != "" {
		return fmt.Sprintf("overpass returned HTTP %s: %s", status, e.Body)
	}
	return fmt.Sprintf("overpass returned HTTP %s", status)
}

// InvalidResponseError is a success response that cannot be used
type InvalidResponseError struct {
	Reason string
}

// Error implements the error interface.
func (e *InvalidResponseError) Error() string {
	return "invalid overpass response: " + e.Reason
}
