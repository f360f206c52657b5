package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"swood/backend"
	"swood/backend/overpass"
	"swood/backend/sqlite"
	"swood/internal/cache"
	"swood/internal/clock"
	"swood/internal/config"
	"swood/internal/credentials"
	"swood/internal/location"
	"swood/internal/notification"
	"swood/internal/ratelimit"
	"swood/internal/retry"
	"swood/internal/shutdown"
	"swood/internal/store"
	"swood/internal/syncer"
	"swood/internal/tui"
	"swood/internal/utils"
	"swood/internal/watcher"
)

// Version is set at build time
var Version = "dev"

// Result codes for JSON output
const (
	ResultActionCompleted = "ACTION_COMPLETED"
	ResultInfoOnly        = "INFO_ONLY"
	ResultError           = "ERROR"
)

// Config holds settings injected by main or by tests
type Config struct {
	NoPrompt   bool
	Verbose    bool
	ConfigPath string // Path to config.yaml, default XDG location
	DBPath     string // Overrides storage.path

	// Test hooks
	Stdin      io.Reader
	Keyring    credentials.Keyring
	HTTPClient *http.Client
	Clock      clock.Clock // Also drives retry delays
}

// Execute runs the CLI with the given arguments and IO writers
func Execute(args []string, stdout, stderr io.Writer, cfg *Config) int {
	rootCmd := NewSwood(stdout, stderr, cfg)

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		if containsJSONFlag(args) {
			outputErrorJSON(err, stdout)
		} else {
			_, _ = fmt.Fprintln(stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

// containsJSONFlag checks if args contain --json flag
func containsJSONFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--json" {
			return true
		}
	}
	return false
}

// NewSwood creates the root command with injectable IO
func NewSwood(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	if cfg == nil {
		cfg = &Config{}
	}

	cmd := &cobra.Command{
		Use:     "swood",
		Short:   "Find restaurants around you",
		Long:    "swood lists restaurants near your location, keeps the last results for offline use and remembers your favorites.",
		Version: Version,
		Args:    cobra.NoArgs,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			applyGlobalFlags(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if isTerminal(stdout) {
				return runTUI(cfg)
			}
			return runNearby(cmd, cfg, stdout, stderr, false)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to config file")
	cmd.PersistentFlags().String("db", "", "Path to the cache database (\":memory:\" for a throwaway cache)")
	cmd.PersistentFlags().BoolP("no-prompt", "y", false, "Disable interactive prompts")
	cmd.PersistentFlags().BoolP("verbose", "V", false, "Enable verbose/debug output")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")

	cmd.AddCommand(newNearbyCmd(stdout, stderr, cfg))
	cmd.AddCommand(newShowCmd(stdout, stderr, cfg))
	cmd.AddCommand(newFavoritesCmd(stdout, stderr, cfg))
	cmd.AddCommand(newResetCmd(stdout, cfg))
	cmd.AddCommand(newCredentialsCmd(stdout, stderr, cfg))
	cmd.AddCommand(newNotificationsCmd(stdout, cfg))

	return cmd
}

func applyGlobalFlags(cmd *cobra.Command, cfg *Config) {
	if v, _ := cmd.Flags().GetString("config"); v != "" {
		cfg.ConfigPath = v
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.DBPath = v
	}
	if v, _ := cmd.Flags().GetBool("no-prompt"); v {
		cfg.NoPrompt = true
	}
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		cfg.Verbose = true
	}
	utils.SetVerboseMode(cfg.Verbose)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// =============================================================================
// Wiring
// =============================================================================

// app is everything a command needs, built from the config file and flags
type app struct {
	cfg          *config.Config
	configPath   string
	locator      *location.Switchable
	store        *store.Store
	cache        *cache.Cache
	orchestrator *syncer.Orchestrator
	shutdown     *shutdown.Manager
}

// loadConfig reads and validates the config file with flag overrides applied
func loadConfig(cfg *Config) (*config.Config, string, error) {
	configPath := cfg.ConfigPath
	if configPath == "" {
		configPath = filepath.Join(config.GetConfigDir(), "config.yaml")
	}
	appCfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", err
	}
	appCfg.ApplyFlags(cfg.DBPath, "")
	if err := appCfg.Validate(); err != nil {
		return nil, "", err
	}
	return appCfg, configPath, nil
}

func openApp(cfg *Config) (*app, error) {
	appCfg, configPath, err := loadConfig(cfg)
	if err != nil {
		return nil, err
	}

	mgr := shutdown.NewManager(context.Background())
	fail := func(err error) (*app, error) {
		_ = mgr.Close(context.Background())
		return nil, err
	}

	kv, err := openKV(appCfg.GetDatabasePath())
	if err != nil {
		return fail(err)
	}
	mgr.RegisterCloser("kv", kv)

	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	var credOpts []credentials.ManagerOption
	if cfg.Keyring != nil {
		credOpts = append(credOpts, credentials.WithKeyring(cfg.Keyring))
	}
	token := credentials.NewManager(credOpts...).Token(mgr.Context(), credentials.DefaultService)

	attempts := retry.NewStats()
	limits := ratelimit.NewStats()
	source := overpass.New(overpass.Config{
		Endpoint:   appCfg.Overpass.Endpoint,
		Token:      token,
		UserAgent:  "swood/" + Version,
		Timeout:    appCfg.GetOverpassTimeout(),
		HTTPClient: cfg.HTTPClient,
		Clock:      clk,
		Stats:      attempts,
		RateLimits: limits,
	})
	mgr.Register("overpass", func(context.Context) error {
		if attempts.Attempts() > 0 {
			utils.Debugf("overpass: %d attempt(s), %d failed, %d rate limited",
				attempts.Attempts(), attempts.Failures(), limits.RateLimitCount())
		}
		return source.Close()
	})

	provider, err := location.FromSettings(appCfg.LocationSettings())
	if err != nil {
		return fail(err)
	}
	locator := location.NewSwitchable(provider)

	notifier, err := notification.NewManager(appCfg.NotificationConfig())
	if err != nil {
		return fail(err)
	}
	mgr.RegisterCloser("notifications", notifier)

	st := store.New(clk)
	c := cache.New(kv, clk)
	// Every attempt may time out and then wait out the longest rate limit hint
	perAttempt := appCfg.GetOverpassTimeout() + ratelimit.MaxWait
	orch := syncer.New(st, c, source, locator,
		syncer.WithNotifier(notifier),
		syncer.WithClock(clk),
		syncer.WithFetchTimeout(time.Duration(retry.DefaultPolicy.MaxAttempts)*perAttempt),
	)

	mgr.HandleSignals()
	return &app{
		cfg:          appCfg,
		configPath:   configPath,
		locator:      locator,
		store:        st,
		cache:        c,
		orchestrator: orch,
		shutdown:     mgr,
	}, nil
}

// reloadLocation rereads the location settings from the config file. A
// broken file keeps the current provider.
func (a *app) reloadLocation() bool {
	appCfg, err := config.Load(a.configPath)
	if err != nil {
		utils.Warnf("config reload failed: %v", err)
		return false
	}
	provider, err := location.FromSettings(appCfg.LocationSettings())
	if err != nil {
		utils.Warnf("config reload failed: %v", err)
		return false
	}
	a.locator.Set(provider)
	utils.Infof("location settings reloaded from %s", a.configPath)
	return true
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.shutdown.Close(ctx)
}

func (a *app) ctx() context.Context {
	return a.shutdown.Context()
}

// openKV opens the persisted cache. ":memory:" keeps it in an in-memory
// SQLite database that lives as long as the process.
func openKV(path string) (backend.KV, error) {
	db, err := sqlite.New(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	return db, nil
}

func runTUI(cfg *Config) error {
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	// Keep log lines off the screen while the UI runs
	if err := utils.GetLogger().SetOutputFile(a.cfg.Logging.File); err != nil {
		utils.Warnf("could not open log file: %v", err)
	}

	model := tui.New(a.ctx(), a.store, a.orchestrator, a.cache)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(a.ctx()))

	w, err := watcher.New(watcher.DefaultConfig(func() {
		if a.reloadLocation() {
			p.Send(tui.LocationChangedMsg{})
		}
	}, a.configPath))
	if err == nil {
		if err = w.Start(); err != nil {
			w.Stop()
		}
	}
	if err != nil {
		utils.Warnf("config changes will not be picked up: %v", err)
	} else {
		a.shutdown.RegisterCloser("watcher", w)
	}

	_, err = p.Run()
	if a.shutdown.IsShutdown() {
		return nil
	}
	return err
}

// =============================================================================
// nearby
// =============================================================================

func newNearbyCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nearby",
		Short: "List restaurants around your location",
		Long:  "List restaurants within 1 km. Results are reused for 30 minutes while you stay in place, and saved results are shown when the network is unavailable.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			refresh, _ := cmd.Flags().GetBool("refresh")
			return runNearby(cmd, cfg, stdout, stderr, refresh)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().BoolP("refresh", "r", false, "Ignore cached results and query the network")
	return cmd
}

func runNearby(cmd *cobra.Command, cfg *Config, stdout, stderr io.Writer, refresh bool) error {
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.orchestrator.Run(a.ctx(), refresh)
	if err != nil {
		return err
	}

	state := a.store.State()
	favs := favoriteIDs(a.cache.Favorites(a.ctx()))

	if jsonOutput(cmd, a.cfg) {
		return outputNearbyJSON(state, res, favs, stdout)
	}

	if res.UsedFallback {
		_, _ = fmt.Fprintln(stderr, "Could not refresh; showing saved restaurants.")
	}
	printNearby(state, favs, stdout)
	return nil
}

func printNearby(state store.State, favs map[int64]bool, stdout io.Writer) {
	if state.Location != nil {
		_, _ = fmt.Fprintf(stdout, "Restaurants near %.4f, %.4f (%d):\n", state.Location.Latitude, state.Location.Longitude, len(state.Restaurants))
	}
	if len(state.Restaurants) == 0 {
		_, _ = fmt.Fprintln(stdout, "No restaurants found")
		return
	}
	for _, r := range state.Restaurants {
		_, _ = fmt.Fprintln(stdout, formatRestaurantLine(r, favs[r.ID]))
	}
}

func formatRestaurantLine(r backend.Restaurant, favorite bool) string {
	star := " "
	if favorite {
		star = "★"
	}
	line := fmt.Sprintf("  %s %-12d %s", star, r.ID, r.Name)
	if r.Cuisine != "" {
		line += " [" + r.Cuisine + "]"
	}
	return line
}

// =============================================================================
// show
// =============================================================================

func newShowCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show details of a restaurant",
		Long:  "Show details of a restaurant from the current results or from your favorites.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := utils.ParseRestaurantID(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			r, err := findRestaurant(a, id)
			if err != nil {
				return err
			}
			favorite := a.cache.IsFavorite(a.ctx(), id)

			if jsonOutput(cmd, a.cfg) {
				return writeJSON(stdout, restaurantResponse{
					Restaurant: toJSON(*r, favorite),
					Result:     ResultInfoOnly,
				})
			}
			printDetails(*r, favorite, stdout)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// findRestaurant looks up id in favorites, then in the results of a regular session
func findRestaurant(a *app, id int64) (*backend.Restaurant, error) {
	if r := backend.FindRestaurant(a.cache.Favorites(a.ctx()), id); r != nil {
		return r, nil
	}
	if _, err := a.orchestrator.Run(a.ctx(), false); err != nil {
		return nil, err
	}
	if r := backend.FindRestaurant(a.store.State().Restaurants, id); r != nil {
		return r, nil
	}
	return nil, utils.ErrRestaurantNotFound(id)
}

func printDetails(r backend.Restaurant, favorite bool, stdout io.Writer) {
	_, _ = fmt.Fprintln(stdout, r.Name)
	field := func(label, value string) {
		if value != "" {
			_, _ = fmt.Fprintf(stdout, "  %-9s %s\n", label+":", value)
		}
	}
	field("ID", fmt.Sprint(r.ID))
	field("Cuisine", r.Cuisine)
	field("Address", r.Address)
	field("City", r.City)
	field("Phone", r.Phone)
	field("Website", r.Website)
	field("Location", fmt.Sprintf("%.4f, %.4f", r.Latitude, r.Longitude))
	if favorite {
		field("Favorite", "yes")
	} else {
		field("Favorite", "no")
	}
}

// =============================================================================
// favorites
// =============================================================================

func newFavoritesCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	favCmd := &cobra.Command{
		Use:   "favorites",
		Short: "Manage favorite restaurants",
		Long:  "List favorite restaurants or manage them with subcommands.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFavoritesList(cmd, cfg, stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	favCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List favorite restaurants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFavoritesList(cmd, cfg, stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	favCmd.AddCommand(&cobra.Command{
		Use:   "add <id>",
		Short: "Add a restaurant from the current results to favorites",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := utils.ParseRestaurantID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			r, err := findRestaurant(a, id)
			if err != nil {
				return err
			}
			a.cache.AddFavorite(a.ctx(), *r)
			return outputAction(cmd, a.cfg, stdout, "add", *r, fmt.Sprintf("Added %s to favorites", r.Name))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	favCmd.AddCommand(&cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a restaurant from favorites",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := utils.ParseRestaurantID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			r := backend.FindRestaurant(a.cache.Favorites(a.ctx()), id)
			if r == nil {
				r = &backend.Restaurant{ID: id}
			}
			a.cache.RemoveFavorite(a.ctx(), id)
			return outputAction(cmd, a.cfg, stdout, "remove", *r, fmt.Sprintf("Removed %d from favorites", id))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	return favCmd
}

func runFavoritesList(cmd *cobra.Command, cfg *Config, stdout io.Writer) error {
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	favs := a.cache.Favorites(a.ctx())
	if jsonOutput(cmd, a.cfg) {
		out := listResponse{Restaurants: make([]restaurantJSON, 0, len(favs)), Count: len(favs), Result: ResultInfoOnly}
		for _, r := range favs {
			out.Restaurants = append(out.Restaurants, toJSON(r, true))
		}
		return writeJSON(stdout, out)
	}

	if len(favs) == 0 {
		_, _ = fmt.Fprintln(stdout, "No favorites yet")
		return nil
	}
	_, _ = fmt.Fprintf(stdout, "Favorites (%d):\n", len(favs))
	for _, r := range favs {
		_, _ = fmt.Fprintln(stdout, formatRestaurantLine(r, true))
	}
	return nil
}

// =============================================================================
// reset
// =============================================================================

func newResetCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete saved results, favorites and last location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cfg.NoPrompt {
				stdin := cfg.Stdin
				if stdin == nil {
					stdin = os.Stdin
				}
				if !utils.PromptYesNoWithReader("Delete all saved restaurants and favorites?", stdin, stdout) {
					_, _ = fmt.Fprintln(stdout, "Cancelled")
					return nil
				}
			}

			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			a.cache.ClearAll(a.ctx())
			a.store.Reset()
			_, _ = fmt.Fprintln(stdout, "Cache cleared")
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// =============================================================================
// credentials
// =============================================================================

func newCredentialsCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	credentialsCmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the Overpass API token",
		Long:  "Store, inspect and remove the optional API token sent to the Overpass endpoint.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	handler := func() *credentials.CLIHandler {
		var opts []credentials.ManagerOption
		if cfg.Keyring != nil {
			opts = append(opts, credentials.WithKeyring(cfg.Keyring))
		}
		stdin := cfg.Stdin
		if stdin == nil {
			stdin = os.Stdin
		}
		return credentials.NewCLIHandler(credentials.NewManager(opts...), stdin, stdout, stderr)
	}

	credentialsCmd.AddCommand(&cobra.Command{
		Use:   "set [service]",
		Short: "Store a token in the system keyring",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handler().Set(serviceArg(args))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	credentialsCmd.AddCommand(&cobra.Command{
		Use:   "get [service]",
		Short: "Show where the token comes from",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonFlag, _ := cmd.Flags().GetBool("json")
			return handler().Get(serviceArg(args), jsonFlag)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	credentialsCmd.AddCommand(&cobra.Command{
		Use:   "delete [service]",
		Short: "Remove the token from the system keyring",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handler().Delete(serviceArg(args))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	return credentialsCmd
}

func serviceArg(args []string) string {
	if len(args) == 0 {
		return credentials.DefaultService
	}
	return args[0]
}

// =============================================================================
// notifications
// =============================================================================

func newNotificationsCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	notifCmd := &cobra.Command{
		Use:   "notifications",
		Short: "Show past fetch failures and fallbacks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, _, err := loadConfig(cfg)
			if err != nil {
				return err
			}
			var types []notification.NotificationType
			names, _ := cmd.Flags().GetStringSlice("type")
			for _, name := range names {
				t, err := notification.ParseType(name)
				if err != nil {
					return err
				}
				types = append(types, t)
			}

			entries, err := notification.ReadLog(appCfg.Notification.LogPath, types...)
			if err != nil {
				return fmt.Errorf("failed to read notification log: %w", err)
			}

			if jsonOutput(cmd, appCfg) {
				if entries == nil {
					entries = []notification.LogEntry{}
				}
				return writeJSON(stdout, notificationsResponse{Entries: entries, Count: len(entries), Result: ResultInfoOnly})
			}
			if len(entries) == 0 {
				_, _ = fmt.Fprintln(stdout, "No notifications")
				return nil
			}
			for _, e := range entries {
				_, _ = fmt.Fprintln(stdout, e.String())
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	notifCmd.Flags().StringSlice("type", nil, "Only show these types (fetch_error, permission_denied, stale_results)")

	notifCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Clear the notification log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, _, err := loadConfig(cfg)
			if err != nil {
				return err
			}
			if err := notification.ClearLog(appCfg.Notification.LogPath); err != nil {
				return fmt.Errorf("failed to clear notification log: %w", err)
			}
			_, _ = fmt.Fprintln(stdout, "Notification log cleared")
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	return notifCmd
}

// =============================================================================
// JSON output
// =============================================================================

type restaurantJSON struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Cuisine   string  `json:"cuisine,omitempty"`
	Phone     string  `json:"phone,omitempty"`
	Website   string  `json:"website,omitempty"`
	Address   string  `json:"address,omitempty"`
	City      string  `json:"city,omitempty"`
	Favorite  bool    `json:"favorite"`
}

type nearbyResponse struct {
	Restaurants []restaurantJSON  `json:"restaurants"`
	Count       int               `json:"count"`
	Location    *backend.Location `json:"location,omitempty"`
	LastFetch   string            `json:"last_fetch,omitempty"`
	Source      string            `json:"source"`
	Stale       bool              `json:"stale"`
	Session     string            `json:"session"`
	Result      string            `json:"result"`
}

type listResponse struct {
	Restaurants []restaurantJSON `json:"restaurants"`
	Count       int              `json:"count"`
	Result      string           `json:"result"`
}

type restaurantResponse struct {
	Restaurant restaurantJSON `json:"restaurant"`
	Result     string         `json:"result"`
}

type actionResponse struct {
	Action     string         `json:"action"`
	Restaurant restaurantJSON `json:"restaurant"`
	Result     string         `json:"result"`
}

type notificationsResponse struct {
	Entries []notification.LogEntry `json:"entries"`
	Count   int                     `json:"count"`
	Result  string                  `json:"result"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Code   int    `json:"code"`
	Result string `json:"result"`
}

func jsonOutput(cmd *cobra.Command, appCfg *config.Config) bool {
	if v, _ := cmd.Flags().GetBool("json"); v {
		return true
	}
	return appCfg.OutputFormat == "json"
}

func toJSON(r backend.Restaurant, favorite bool) restaurantJSON {
	return restaurantJSON{
		ID:        r.ID,
		Name:      r.Name,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Cuisine:   r.Cuisine,
		Phone:     r.Phone,
		Website:   r.Website,
		Address:   r.Address,
		City:      r.City,
		Favorite:  favorite,
	}
}

func favoriteIDs(favs []backend.Restaurant) map[int64]bool {
	ids := make(map[int64]bool, len(favs))
	for _, f := range favs {
		ids[f.ID] = true
	}
	return ids
}

// dataSource names where a session took its restaurants from
func dataSource(res syncer.Result) string {
	if res.UsedFallback {
		return "fallback"
	}
	for _, s := range res.Transitions {
		switch s {
		case syncer.StateUsingMemory:
			return "memory"
		case syncer.StateUsingDiskCache:
			return "cache"
		case syncer.StateFetching:
			return "network"
		}
	}
	return "none"
}

func outputNearbyJSON(state store.State, res syncer.Result, favs map[int64]bool, stdout io.Writer) error {
	out := nearbyResponse{
		Restaurants: make([]restaurantJSON, 0, len(state.Restaurants)),
		Count:       len(state.Restaurants),
		Location:    state.Location,
		Source:      dataSource(res),
		Stale:       res.UsedFallback,
		Session:     res.SessionID,
		Result:      ResultInfoOnly,
	}
	if state.LastFetch != nil {
		out.LastFetch = state.LastFetch.UTC().Format(time.RFC3339)
	}
	for _, r := range state.Restaurants {
		out.Restaurants = append(out.Restaurants, toJSON(r, favs[r.ID]))
	}
	return writeJSON(stdout, out)
}

func outputAction(cmd *cobra.Command, appCfg *config.Config, stdout io.Writer, action string, r backend.Restaurant, message string) error {
	if jsonOutput(cmd, appCfg) {
		return writeJSON(stdout, actionResponse{
			Action:     action,
			Restaurant: toJSON(r, action == "add"),
			Result:     ResultActionCompleted,
		})
	}
	_, _ = fmt.Fprintln(stdout, message)
	return nil
}

// outputErrorJSON outputs error in JSON format
func outputErrorJSON(err error, stdout io.Writer) {
	msg := err.Error()
	var withSuggestion *utils.ErrorWithSuggestion
	if errors.As(err, &withSuggestion) {
		msg = withSuggestion.Err.Error()
	}
	_ = writeJSON(stdout, errorResponse{Error: msg, Code: 1, Result: ResultError})
}

func writeJSON(stdout io.Writer, v interface{}) error {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, string(jsonBytes))
	return nil
}
