// Package testutil provides shared test utilities for CLI testing: an isolated
// config and database per test and a fake Overpass server.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"swood/backend"
	"swood/backend/overpass"
	"swood/cmd/swood/cmd"
	"swood/internal/clock"
	"swood/internal/credentials"
)

// Paris is the default test location
var Paris = backend.Location{Latitude: 48.8566, Longitude: 2.3522}

// configTemplate keeps tests away from OS notifications and the real network
const configTemplate = `overpass:
  endpoint: %s
  timeout: 5s
location:
  provider: static
  permission: %s
  latitude: %g
  longitude: %g
storage:
  path: %s
notification:
  os: false
  log: true
  log_path: %s
logging:
  file: %s
`

// =============================================================================
// Fake Overpass server
// =============================================================================

// FakeOverpass answers interpreter queries with a configurable element list
type FakeOverpass struct {
	server *httptest.Server

	mu          sync.Mutex
	restaurants []backend.Restaurant
	status      int
	calls       int
	lastQuery   string
	lastAuth    string
	lastAgent   string
}

// NewFakeOverpass starts a server that returns no restaurants until told otherwise
func NewFakeOverpass(t *testing.T) *FakeOverpass {
	t.Helper()
	f := &FakeOverpass{status: http.StatusOK}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *FakeOverpass) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls++
	f.lastQuery = r.URL.Query().Get("data")
	f.lastAuth = r.Header.Get("Authorization")
	f.lastAgent = r.Header.Get("User-Agent")
	status := f.status
	restaurants := backend.CloneRestaurants(f.restaurants)
	f.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}

	elements := make([]overpass.Element, 0, len(restaurants))
	for _, rest := range restaurants {
		lat, lon := rest.Latitude, rest.Longitude
		tags := map[string]string{"amenity": "restaurant", "name": rest.Name}
		if rest.Cuisine != "" {
			tags["cuisine"] = rest.Cuisine
		}
		if rest.Phone != "" {
			tags["phone"] = rest.Phone
		}
		if rest.Address != "" {
			tags["addr:street"] = rest.Address
		}
		if rest.City != "" {
			tags["addr:city"] = rest.City
		}
		elements = append(elements, overpass.Element{ID: rest.ID, Type: "node", Lat: &lat, Lon: &lon, Tags: tags})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(overpass.Response{Elements: &elements})
}

// URL returns the interpreter endpoint
func (f *FakeOverpass) URL() string {
	return f.server.URL + "/api/interpreter"
}

// SetRestaurants sets the restaurants returned by every query
func (f *FakeOverpass) SetRestaurants(rs ...backend.Restaurant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restaurants = backend.CloneRestaurants(rs)
	f.status = http.StatusOK
}

// FailWith makes every query answer with status
func (f *FakeOverpass) FailWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

// Calls returns the number of requests received
func (f *FakeOverpass) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// LastQuery returns the decoded query text of the last request
func (f *FakeOverpass) LastQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery
}

// LastAuthorization returns the Authorization header of the last request
func (f *FakeOverpass) LastAuthorization() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAuth
}

// LastUserAgent returns the User-Agent header of the last request
func (f *FakeOverpass) LastUserAgent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAgent
}

// =============================================================================
// CLI harness
// =============================================================================

// CLITest runs commands against an isolated config, database and Overpass server.
// Every invocation shares the same database, so state persists across calls.
type CLITest struct {
	t          *testing.T
	cfg        *cmd.Config
	tmpDir     string
	configPath string
	Overpass   *FakeOverpass
	Clock      *clock.Fake
	Keyring    *credentials.MockKeyring
}

// NewCLITest creates a CLI test helper located in Paris with permission granted
func NewCLITest(t *testing.T) *CLITest {
	t.Helper()

	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmpDir, "data"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(tmpDir, "cache"))
	t.Setenv(credentials.EnvVar(credentials.DefaultService), "")

	c := &CLITest{
		t:          t,
		tmpDir:     tmpDir,
		configPath: filepath.Join(tmpDir, "config.yaml"),
		Overpass:   NewFakeOverpass(t),
		Clock:      clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
		Keyring:    credentials.NewMockKeyring(),
	}
	c.cfg = &cmd.Config{
		NoPrompt:   true,
		ConfigPath: c.configPath,
		Keyring:    c.Keyring,
		Clock:      c.Clock,
		Stdin:      strings.NewReader(""),
	}
	c.WriteConfig(Paris, "granted")
	return c
}

// WriteConfig rewrites the config file with a new location and permission
func (c *CLITest) WriteConfig(loc backend.Location, permission string) {
	c.t.Helper()
	content := fmt.Sprintf(configTemplate,
		c.Overpass.URL(),
		permission,
		loc.Latitude,
		loc.Longitude,
		c.DBPath(),
		c.NotificationLogPath(),
		filepath.Join(c.tmpDir, "swood.log"),
	)
	c.SetFullConfig(content)
}

// SetFullConfig replaces the entire config file with the given YAML content
func (c *CLITest) SetFullConfig(yamlContent string) {
	c.t.Helper()
	if err := os.WriteFile(c.configPath, []byte(yamlContent), 0644); err != nil {
		c.t.Fatalf("failed to write config file: %v", err)
	}
}

// Config returns the test configuration
func (c *CLITest) Config() *cmd.Config {
	return c.cfg
}

// TmpDir returns the temporary directory for the test
func (c *CLITest) TmpDir() string {
	return c.tmpDir
}

// ConfigPath returns the path to the config file
func (c *CLITest) ConfigPath() string {
	return c.configPath
}

// DBPath returns the path to the sqlite cache
func (c *CLITest) DBPath() string {
	return filepath.Join(c.tmpDir, "swood.db")
}

// NotificationLogPath returns the path of the notification log
func (c *CLITest) NotificationLogPath() string {
	return filepath.Join(c.tmpDir, "notifications.log")
}

// SetStdin sets the input read by prompts
func (c *CLITest) SetStdin(input string) {
	c.cfg.Stdin = strings.NewReader(input)
}

// Execute runs a CLI command with the given arguments and returns stdout, stderr, and exit code
func (c *CLITest) Execute(args ...string) (stdout, stderr string, exitCode int) {
	c.t.Helper()

	var stdoutBuf, stderrBuf bytes.Buffer
	exitCode = cmd.Execute(args, &stdoutBuf, &stderrBuf, c.cfg)
	return stdoutBuf.String(), stderrBuf.String(), exitCode
}

// MustExecute runs a CLI command and fails the test if exit code is non-zero
func (c *CLITest) MustExecute(args ...string) string {
	c.t.Helper()

	stdout, stderr, exitCode := c.Execute(args...)
	if exitCode != 0 {
		c.t.Fatalf("expected exit code 0, got %d: stdout=%s stderr=%s", exitCode, stdout, stderr)
	}
	return stdout
}

// ExecuteAndFail runs a CLI command and fails the test if exit code is zero
func (c *CLITest) ExecuteAndFail(args ...string) (stdout, stderr string) {
	c.t.Helper()

	stdout, stderr, exitCode := c.Execute(args...)
	if exitCode == 0 {
		c.t.Fatalf("expected non-zero exit code, got 0: stdout=%s", stdout)
	}
	return stdout, stderr
}

// AssertContains fails the test if output doesn't contain expected string
func AssertContains(t *testing.T, output, expected string) {
	t.Helper()
	if !strings.Contains(output, expected) {
		t.Errorf("expected output to contain %q, got:\n%s", expected, output)
	}
}

// AssertNotContains fails the test if output contains unexpected string
func AssertNotContains(t *testing.T, output, unexpected string) {
	t.Helper()
	if strings.Contains(output, unexpected) {
		t.Errorf("expected output NOT to contain %q, got:\n%s", unexpected, output)
	}
}
