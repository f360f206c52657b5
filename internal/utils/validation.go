package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidateCoordinates checks that lat/lon are within WGS84 ranges.
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return ErrInvalidCoordinates(lat, lon)
	}
	return nil
}

// ParseRestaurantID parses a restaurant id given on the command line.
func ParseRestaurantID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, &ErrorWithSuggestion{
			Err:        fmt.Errorf("invalid restaurant id: %q", s),
			Suggestion: "Use the numeric id shown by 'swood nearby'",
		}
	}
	return id, nil
}
