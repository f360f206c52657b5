package location

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// =============================================================================
// Static Provider Tests
// =============================================================================

func TestStaticProvider(t *testing.T) {
	ctx := context.Background()
	p := NewStatic(48.8566, 2.3522)

	if err := p.RequestPermission(ctx); err != nil {
		t.Fatalf("RequestPermission error: %v", err)
	}
	loc, err := p.CurrentPosition(ctx)
	if err != nil {
		t.Fatalf("CurrentPosition error: %v", err)
	}
	if loc.Latitude != 48.8566 || loc.Longitude != 2.3522 {
		t.Errorf("position = %+v", loc)
	}
}

func TestStaticProviderDenied(t *testing.T) {
	p := NewStatic(1, 2)
	p.Denied = true

	if err := p.RequestPermission(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestStaticProviderInvalidCoordinates(t *testing.T) {
	p := NewStatic(95, 2)
	if _, err := p.CurrentPosition(context.Background()); err == nil {
		t.Error("expected error for latitude 95")
	}
}

// =============================================================================
// IP Provider Tests
// =============================================================================

func TestIPProviderMemoizes(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"status":"success","lat":45.764,"lon":4.8357,"city":"Lyon"}`))
	}))
	defer server.Close()

	p := NewIP(server.URL, server.Client())
	for i := 0; i < 3; i++ {
		loc, err := p.CurrentPosition(context.Background())
		if err != nil {
			t.Fatalf("CurrentPosition error: %v", err)
		}
		if loc.Latitude != 45.764 || loc.Longitude != 4.8357 {
			t.Errorf("position = %+v", loc)
		}
	}
	if calls != 1 {
		t.Errorf("expected a single lookup, got %d", calls)
	}
}

func TestIPProviderFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"http error", http.StatusTooManyRequests, ``},
		{"api failure", http.StatusOK, `{"status":"fail","message":"reserved range"}`},
		{"bad json", http.StatusOK, `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.payload))
			}))
			defer server.Close()

			p := NewIP(server.URL, server.Client())
			if _, err := p.CurrentPosition(context.Background()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// =============================================================================
// Settings Tests
// =============================================================================

func TestFromSettings(t *testing.T) {
	p, err := FromSettings(Settings{Latitude: 1, Longitude: 2})
	if err != nil {
		t.Fatalf("FromSettings error: %v", err)
	}
	if _, ok := p.(*Static); !ok {
		t.Errorf("default provider should be static, got %T", p)
	}

	p, err = FromSettings(Settings{Provider: "ip", Permission: "denied"})
	if err != nil {
		t.Fatalf("FromSettings error: %v", err)
	}
	ip, ok := p.(*IP)
	if !ok || !ip.Denied {
		t.Errorf("expected denied ip provider, got %#v", p)
	}
	if ip.endpoint != DefaultIPEndpoint {
		t.Errorf("endpoint = %q", ip.endpoint)
	}

	if _, err := FromSettings(Settings{Provider: "gps"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := FromSettings(Settings{Permission: "maybe"}); err == nil {
		t.Error("expected error for unknown permission")
	}
}

func TestSwitchableProvider(t *testing.T) {
	ctx := context.Background()
	s := NewSwitchable(NewStatic(48.8566, 2.3522))

	loc, err := s.CurrentPosition(ctx)
	if err != nil || loc.Latitude != 48.8566 {
		t.Fatalf("CurrentPosition = %+v, %v", loc, err)
	}

	denied := NewStatic(45.764, 4.8357)
	denied.Denied = true
	s.Set(denied)

	if err := s.RequestPermission(ctx); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied after Set, got %v", err)
	}
	loc, _ = s.CurrentPosition(ctx)
	if loc.Latitude != 45.764 {
		t.Errorf("expected the new provider's position, got %+v", loc)
	}
}
