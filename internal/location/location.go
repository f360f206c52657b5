// Package location provides the device location service: a permission check
// and the current position.
package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"swood/backend"
	"swood/internal/utils"
)

// ErrPermissionDenied is returned when location access is refused.
var ErrPermissionDenied = errors.New("location permission denied")

// Permission values accepted by providers
const (
	PermissionGranted = "granted"
	PermissionDenied  = "denied"
)

// Provider is the device location service used by the sync orchestrator
type Provider interface {
	// RequestPermission returns ErrPermissionDenied when access is refused
	RequestPermission(ctx context.Context) error
	CurrentPosition(ctx context.Context) (backend.Location, error)
}

// Static returns a fixed position
type Static struct {
	Location backend.Location
	Denied   bool
}

// NewStatic creates a provider for a fixed position
func NewStatic(lat, lon float64) *Static {
	return &Static{Location: backend.Location{Latitude: lat, Longitude: lon}}
}

// RequestPermission implements Provider.
func (s *Static) RequestPermission(ctx context.Context) error {
	if s.Denied {
		return ErrPermissionDenied
	}
	return ctx.Err()
}

// CurrentPosition implements Provider.
func (s *Static) CurrentPosition(ctx context.Context) (backend.Location, error) {
	if err := ctx.Err(); err != nil {
		return backend.Location{}, err
	}
	if err := utils.ValidateCoordinates(s.Location.Latitude, s.Location.Longitude); err != nil {
		return backend.Location{}, err
	}
	return s.Location, nil
}

// DefaultIPEndpoint is the IP geolocation service used by the ip provider
const DefaultIPEndpoint = "http://ip-api.com/json/"

// ipMemoTTL bounds how long an IP lookup is reused
const ipMemoTTL = 10 * time.Minute

const ipMemoKey = "position"

// IP resolves the position from the public IP address. Lookups are memoized.
type IP struct {
	endpoint string
	http     *http.Client
	memo     *gocache.Cache
	Denied   bool
}

// ipAPIResponse is the subset of the ip-api.com JSON used here
type ipAPIResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// NewIP creates an IP geolocation provider. An empty endpoint uses
// DefaultIPEndpoint.
func NewIP(endpoint string, client *http.Client) *IP {
	if endpoint == "" {
		endpoint = DefaultIPEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &IP{
		endpoint: endpoint,
		http:     client,
		memo:     gocache.New(ipMemoTTL, 2*ipMemoTTL),
	}
}

// RequestPermission implements Provider.
func (p *IP) RequestPermission(ctx context.Context) error {
	if p.Denied {
		return ErrPermissionDenied
	}
	return ctx.Err()
}

// CurrentPosition implements Provider.
func (p *IP) CurrentPosition(ctx context.Context) (backend.Location, error) {
	if cached, found := p.memo.Get(ipMemoKey); found {
		return cached.(backend.Location), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return backend.Location{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return backend.Location{}, fmt.Errorf("ip geolocation failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return backend.Location{}, fmt.Errorf("ip geolocation returned HTTP %d", resp.StatusCode)
	}

	var body ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return backend.Location{}, fmt.Errorf("failed to decode ip geolocation: %w", err)
	}
	if body.Status != "" && body.Status != "success" {
		return backend.Location{}, fmt.Errorf("ip geolocation failed: %s", body.Message)
	}
	if err := utils.ValidateCoordinates(body.Lat, body.Lon); err != nil {
		return backend.Location{}, err
	}

	loc := backend.Location{Latitude: body.Lat, Longitude: body.Lon}
	p.memo.SetDefault(ipMemoKey, loc)
	utils.Debugf("ip geolocation resolved %.4f, %.4f", loc.Latitude, loc.Longitude)
	return loc, nil
}

// Switchable forwards to a provider that can be replaced while sessions run,
// e.g. when the config file changes under a running UI.
type Switchable struct {
	mu sync.RWMutex
	p  Provider
}

// NewSwitchable wraps p
func NewSwitchable(p Provider) *Switchable {
	return &Switchable{p: p}
}

// Set replaces the provider used by later calls
func (s *Switchable) Set(p Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p = p
}

func (s *Switchable) current() Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p
}

// RequestPermission implements Provider.
func (s *Switchable) RequestPermission(ctx context.Context) error {
	return s.current().RequestPermission(ctx)
}

// CurrentPosition implements Provider.
func (s *Switchable) CurrentPosition(ctx context.Context) (backend.Location, error) {
	return s.current().CurrentPosition(ctx)
}

// Settings selects and configures a provider
type Settings struct {
	Provider   string // static or ip
	Permission string // granted or denied
	Latitude   float64
	Longitude  float64
	IPEndpoint string
}

// FromSettings builds the configured provider
func FromSettings(s Settings) (Provider, error) {
	var denied bool
	switch strings.ToLower(s.Permission) {
	case "", PermissionGranted:
	case PermissionDenied:
		denied = true
	default:
		return nil, fmt.Errorf("unknown location permission %q (must be 'granted' or 'denied')", s.Permission)
	}

	switch strings.ToLower(s.Provider) {
	case "", "static":
		p := NewStatic(s.Latitude, s.Longitude)
		p.Denied = denied
		return p, nil
	case "ip":
		p := NewIP(s.IPEndpoint, nil)
		p.Denied = denied
		return p, nil
	default:
		return nil, fmt.Errorf("unknown location provider %q (must be 'static' or 'ip')", s.Provider)
	}
}
