// Package credentials stores the optional API token for the POI service in
// the OS keyring, with a fallback to environment variables.
package credentials

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Source indicates where credentials were retrieved from
type Source string

const (
	SourceKeyring     Source = "keyring"
	SourceEnvironment Source = "environment"
	SourceNone        Source = "none"
)

// DefaultService is the service holding the Overpass token
const DefaultService = "overpass"

// account is the keyring account used for API tokens
const account = "token"

// CredentialInfo contains credential information returned by Get()
type CredentialInfo struct {
	Source  Source
	Service string
	Token   string // never printed
	Found   bool
}

// JSON serializes the credential info to JSON (token excluded)
func (c *CredentialInfo) JSON() ([]byte, error) {
	output := struct {
		Service string `json:"service"`
		Source  string `json:"source"`
		Found   bool   `json:"found"`
	}{
		Service: c.Service,
		Source:  string(c.Source),
		Found:   c.Found,
	}
	return json.Marshal(output)
}

// Keyring is the interface for keyring operations
type Keyring interface {
	Set(service, account, secret string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
}

// Manager handles credential operations
type Manager struct {
	keyring Keyring
	getenv  func(string) string
}

// ManagerOption is a functional option for Manager
type ManagerOption func(*Manager)

// WithKeyring sets a custom keyring implementation
func WithKeyring(k Keyring) ManagerOption {
	return func(m *Manager) {
		m.keyring = k
	}
}

// NewManager creates a new credential manager
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		keyring: &systemKeyring{},
		getenv:  os.Getenv,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// normalizeService normalizes service names to lowercase
func normalizeService(service string) string {
	return strings.ToLower(strings.TrimSpace(service))
}

// keyringService returns the keyring service name, e.g. "swood-overpass"
func keyringService(service string) string {
	return fmt.Sprintf("swood-%s", normalizeService(service))
}

// EnvVar returns the environment variable holding the token, e.g.
// SWOOD_OVERPASS_TOKEN
func EnvVar(service string) string {
	return fmt.Sprintf("SWOOD_%s_TOKEN", strings.ToUpper(normalizeService(service)))
}

// Set stores a token in the keyring
func (m *Manager) Set(ctx context.Context, service, token string) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("token must not be empty")
	}
	return m.keyring.Set(keyringService(service), account, token)
}

// Get retrieves the token from the keyring first, then the environment.
// A missing token is not an error: Found reports it.
func (m *Manager) Get(ctx context.Context, service string) (*CredentialInfo, error) {
	service = normalizeService(service)

	token, err := m.keyring.Get(keyringService(service), account)
	if err == nil && token != "" {
		return &CredentialInfo{Source: SourceKeyring, Service: service, Token: token, Found: true}, nil
	}

	if token := m.getenv(EnvVar(service)); token != "" {
		return &CredentialInfo{Source: SourceEnvironment, Service: service, Token: token, Found: true}, nil
	}

	return &CredentialInfo{Source: SourceNone, Service: service}, nil
}

// Token returns the token or "" when none is configured
func (m *Manager) Token(ctx context.Context, service string) string {
	info, err := m.Get(ctx, service)
	if err != nil || !info.Found {
		return ""
	}
	return info.Token
}

// Delete removes the token from the keyring. Deleting a missing token succeeds.
func (m *Manager) Delete(ctx context.Context, service string) error {
	err := m.keyring.Delete(keyringService(service), account)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// PromptToken prompts for a token. Input is hidden when reader is a terminal.
func PromptToken(reader io.Reader, writer io.Writer, service string) (string, error) {
	_, _ = fmt.Fprintf(writer, "Enter API token for %s: ", service)

	if f, ok := reader.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(writer)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(secret)), nil
	}

	// Non-TTY input, e.g. a pipe
	scanner := bufio.NewScanner(reader)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no input received")
}
