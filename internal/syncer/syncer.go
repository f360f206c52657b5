// Package syncer decides, for each session, whether restaurants come from
// memory, the persisted cache or the network, and reconciles the results
// into the store and the cache.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"swood/backend"
	"swood/internal/cache"
	"swood/internal/clock"
	"swood/internal/location"
	"swood/internal/notification"
	"swood/internal/store"
	"swood/internal/utils"
)

// DefaultFetchTimeout bounds a shared fetch when no session is waiting on it
const DefaultFetchTimeout = 2 * time.Minute

// ErrPermissionDenied is returned by Run when location access is refused.
var ErrPermissionDenied = location.ErrPermissionDenied

// State is a step of a session
type State int

const (
	StateIdle State = iota
	StateAcquiringLocation
	StateCheckingFreshness
	StateUsingMemory
	StateUsingDiskCache
	StateFetching
	StateSettled
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringLocation:
		return "acquiring_location"
	case StateCheckingFreshness:
		return "checking_freshness"
	case StateUsingMemory:
		return "using_memory"
	case StateUsingDiskCache:
		return "using_disk_cache"
	case StateFetching:
		return "fetching"
	case StateSettled:
		return "settled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result describes how a session ended
type Result struct {
	SessionID    string
	State        State   // StateSettled or StateFailed
	Transitions  []State // every state entered, in order
	Location     *backend.Location
	Count        int  // restaurants written by this session
	UsedFallback bool // fetch failed and a cached result was shown instead
	Superseded   bool // a newer session started before this one finished
}

// TransitionFunc observes state changes of every session
type TransitionFunc func(sessionID string, s State)

// Orchestrator runs sessions against a store, a cache and a POI source
type Orchestrator struct {
	store    *store.Store
	cache    *cache.Cache
	source   backend.Source
	locator  location.Provider
	notifier notification.NotificationManager
	onChange TransitionFunc
	clock    clock.Clock

	fetchTimeout time.Duration

	generation atomic.Uint64
	flight     singleflight.Group
	mu         sync.Mutex
	lastResult Result
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithNotifier sends user-visible alerts for failed sessions
func WithNotifier(n notification.NotificationManager) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithClock sets the clock used to age cached results in messages
func WithClock(clk clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = clk }
}

// WithFetchTimeout bounds a shared fetch, retries included
func WithFetchTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.fetchTimeout = d
		}
	}
}

// WithTransitionHook registers fn for every state change
func WithTransitionHook(fn TransitionFunc) Option {
	return func(o *Orchestrator) { o.onChange = fn }
}

// New creates an orchestrator
func New(st *store.Store, c *cache.Cache, src backend.Source, loc location.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   st,
		cache:   c,
		source:  src,
		locator: loc,
		clock:   clock.Real{},

		fetchTimeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Refresh runs a forced session
func (o *Orchestrator) Refresh(ctx context.Context) (Result, error) {
	return o.Run(ctx, true)
}

// LastResult returns the result of the most recently finished session
func (o *Orchestrator) LastResult() Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastResult
}

// Run executes one session. A forced session skips the memory and disk
// checks and always fetches.
//
// Sessions may overlap. Each takes a generation number when it starts and
// only the newest generation writes the store; older sessions still update
// the persisted cache. Identical concurrent fetches share one request.
//
// The returned error is nil when restaurants were shown, including stale
// ones from the cache after a failed fetch.
func (o *Orchestrator) Run(ctx context.Context, force bool) (Result, error) {
	s := &session{
		o:   o,
		gen: o.generation.Add(1),
		res: Result{SessionID: uuid.NewString()},
	}
	utils.Debugf("[%s] session started (force=%v)", s.short(), force)

	err := s.run(ctx, force)
	s.res.Superseded = !s.current()

	o.mu.Lock()
	o.lastResult = s.res
	o.mu.Unlock()
	return s.res, err
}

type session struct {
	o   *Orchestrator
	gen uint64
	res Result
}

func (s *session) short() string {
	return s.res.SessionID[:8]
}

func (s *session) current() bool {
	return s.o.generation.Load() == s.gen
}

func (s *session) enter(st State) {
	s.res.State = st
	s.res.Transitions = append(s.res.Transitions, st)
	utils.Debugf("[%s] %s", s.short(), st)
	if s.o.onChange != nil {
		s.o.onChange(s.res.SessionID, st)
	}
}

func (s *session) run(ctx context.Context, force bool) error {
	o := s.o
	s.enter(StateAcquiringLocation)
	if s.current() {
		o.store.SetLoading(true)
	}

	if err := o.locator.RequestPermission(ctx); err != nil {
		return s.denied(err)
	}

	loc, err := o.locator.CurrentPosition(ctx)
	if err != nil {
		return s.fallback(ctx, fmt.Errorf("failed to get current position: %w", err))
	}
	s.res.Location = &loc

	s.enter(StateCheckingFreshness)
	if !force {
		if o.store.IsFresh() && !o.store.HasLocationChanged(loc.Latitude, loc.Longitude) {
			s.enter(StateUsingMemory)
			if s.current() {
				o.store.SetLoading(false)
			}
			s.res.Count = len(o.store.State().Restaurants)
			s.enter(StateSettled)
			return nil
		}

		cached, ok := o.cache.LoadResult(ctx)
		if ok && len(cached.Restaurants) > 0 && cached.Matches(loc.Latitude, loc.Longitude, backend.DefaultRadius) {
			s.enter(StateUsingDiskCache)
			if s.current() {
				o.store.SetRestaurants(cached.Restaurants, loc)
			}
			s.res.Count = len(cached.Restaurants)
			s.enter(StateSettled)
			return nil
		}
	}

	s.enter(StateFetching)
	restaurants, err := o.fetch(ctx, loc)
	if err != nil {
		return s.fallback(ctx, err)
	}

	if s.current() {
		o.store.SetRestaurants(restaurants, loc)
	} else {
		utils.Debugf("[%s] superseded, skipping store update", s.short())
	}
	o.cache.SaveResult(ctx, restaurants, loc.Latitude, loc.Longitude, backend.DefaultRadius)
	o.cache.SaveLastLocation(ctx, loc.Latitude, loc.Longitude)

	s.res.Count = len(restaurants)
	utils.Infof("[%s] loaded %d restaurants", s.short(), len(restaurants))
	s.enter(StateSettled)
	return nil
}

// fetch calls the source, sharing one request between identical concurrent
// queries. The shared request is detached from any one session: a session
// whose context ends stops waiting, the others keep theirs.
func (o *Orchestrator) fetch(ctx context.Context, loc backend.Location) ([]backend.Restaurant, error) {
	key := fmt.Sprintf("%v,%v,%d", loc.Latitude, loc.Longitude, backend.DefaultRadius)
	ch := o.flight.DoChan(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.fetchTimeout)
		defer cancel()
		return o.source.FetchNearby(fctx, loc.Latitude, loc.Longitude, backend.DefaultRadius)
	})

	select {
	case r := <-ch:
		if r.Shared {
			utils.Debugf("fetch for %s shared with a concurrent session", key)
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return backend.CloneRestaurants(r.Val.([]backend.Restaurant)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *session) denied(err error) error {
	o := s.o
	utils.Warnf("[%s] location unavailable: %v", s.short(), err)
	msg := err.Error()
	if errors.Is(err, location.ErrPermissionDenied) {
		msg = ErrPermissionDenied.Error()
	}
	if s.current() {
		o.store.SetError(msg)
	}
	s.notify(notification.NotifyPermissionDenied, "Location permission denied",
		"Location access is needed to find restaurants around you.")
	s.enter(StateFailed)
	return utils.ErrLocationPermission(err)
}

// fallback shows any unexpired cached result after a failure, regardless
// of where it was captured. Without one the error reaches the store and the
// user.
func (s *session) fallback(ctx context.Context, cause error) error {
	o := s.o
	utils.Warnf("[%s] %v", s.short(), cause)

	cached, ok := o.cache.LoadResult(ctx)
	if ok && len(cached.Restaurants) > 0 {
		age := o.clock.Now().Sub(cached.CapturedAt).Round(time.Minute)
		utils.Infof("[%s] showing %d cached restaurants after failure", s.short(), len(cached.Restaurants))
		if s.current() {
			o.store.SetRestaurants(cached.Restaurants, backend.Location{
				Latitude:  cached.Latitude,
				Longitude: cached.Longitude,
			})
		}
		s.res.Count = len(cached.Restaurants)
		s.res.UsedFallback = true
		s.notify(notification.NotifyStaleResults, "Showing saved restaurants",
			fmt.Sprintf("Could not refresh (%v). Showing %d restaurants saved %s ago.", cause, len(cached.Restaurants), age))
		s.enter(StateFailed)
		return nil
	}

	if s.current() {
		o.store.SetError(cause.Error())
	}
	s.notify(notification.NotifyFetchError, "Could not load restaurants", cause.Error())
	s.enter(StateFailed)
	return utils.ErrFetchOffline(cause)
}

func (s *session) notify(t notification.NotificationType, title, msg string) {
	if s.o.notifier == nil {
		return
	}
	s.o.notifier.SendAsync(notification.Notification{
		Type:     t,
		Title:    title,
		Message:  msg,
		Metadata: map[string]string{"session": s.res.SessionID},
	})
}
