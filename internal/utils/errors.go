package utils

import (
	"fmt"
	"strings"
)

// ErrorWithSuggestion wraps an error with a user-friendly suggestion.
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface.
func (e *ErrorWithSuggestion) Error() string {
	return fmt.Sprintf("%s\n\nSuggestion: %s", e.Err.Error(), e.Suggestion)
}

// GetSuggestion returns the suggestion text.
func (e *ErrorWithSuggestion) GetSuggestion() string {
	return e.Suggestion
}

// Unwrap returns the underlying error for error chain support.
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// WrapWithSuggestion wraps an existing error with a suggestion.
func WrapWithSuggestion(err error, suggestion string) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// ErrRestaurantNotFound returns an error for an id absent from the current results.
func ErrRestaurantNotFound(id int64) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("restaurant not found: %d", id),
		Suggestion: "Run 'swood nearby' to list restaurants around you",
	}
}

// ErrLocationPermission wraps a refused location permission.
func ErrLocationPermission(err error) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: "Set location.permission to 'granted' in your config file",
	}
}

// ErrInvalidCoordinates returns an error for out-of-range coordinates.
func ErrInvalidCoordinates(lat, lon float64) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid coordinates: %g, %g", lat, lon),
		Suggestion: "Latitude must be within [-90, 90] and longitude within [-180, 180]",
	}
}

// ErrFetchOffline returns an error when the POI service is unreachable, with smart suggestions.
func ErrFetchOffline(err error) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: getSmartSuggestion(err.Error()),
	}
}

// ErrCredentialsNotFound returns an error when the API token is missing.
func ErrCredentialsNotFound(service string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("credentials not found for %s", service),
		Suggestion: fmt.Sprintf("Run 'swood credentials set' or export SWOOD_%s_TOKEN", strings.ToUpper(service)),
	}
}

// getSmartSuggestion returns a context-aware suggestion based on the error reason.
func getSmartSuggestion(reason string) string {
	lowerReason := strings.ToLower(reason)

	if strings.Contains(lowerReason, "no such host") || strings.Contains(lowerReason, "dns") {
		return "Check your DNS settings and internet connection"
	}

	if strings.Contains(lowerReason, "connection refused") {
		return "Check if the Overpass endpoint is running and accessible"
	}

	if strings.Contains(lowerReason, "timeout") || strings.Contains(lowerReason, "i/o timeout") {
		return "The server may be slow or unreachable. Try again later"
	}

	if strings.Contains(lowerReason, "503") || strings.Contains(lowerReason, "429") {
		return "The Overpass server is busy. Try again in a few minutes or configure another endpoint"
	}

	return "Check your internet connection and try again"
}
