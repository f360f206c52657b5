package credentials

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// CLIHandler handles CLI commands for credential management
type CLIHandler struct {
	manager *Manager
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
}

// NewCLIHandler creates a new CLI handler for credential commands
func NewCLIHandler(manager *Manager, stdin io.Reader, stdout, stderr io.Writer) *CLIHandler {
	return &CLIHandler{
		manager: manager,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
	}
}

// Set prompts for a token and stores it in the keyring
func (h *CLIHandler) Set(service string) error {
	token, err := PromptToken(h.stdin, h.stdout, service)
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}

	err = h.manager.Set(context.Background(), service, token)
	if err != nil {
		if errors.Is(err, ErrKeyringNotAvailable) {
			return h.keyringNotAvailableError(service)
		}
		return fmt.Errorf("failed to store token: %w", err)
	}

	_, _ = fmt.Fprintf(h.stdout, "Token stored in system keyring\n")
	return nil
}

// keyringNotAvailableError suggests the environment variable instead
func (h *CLIHandler) keyringNotAvailableError(service string) error {
	return fmt.Errorf(`system keyring not available.

Alternative: set the token in the environment or in a .env file:
  export %s="your-api-token"`, EnvVar(service))
}

// Get displays where the token comes from
func (h *CLIHandler) Get(service string, jsonOutput bool) error {
	info, err := h.manager.Get(context.Background(), service)
	if err != nil {
		return fmt.Errorf("failed to get token: %w", err)
	}

	if jsonOutput {
		data, err := info.JSON()
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(h.stdout, string(data))
		return nil
	}

	if !info.Found {
		_, _ = fmt.Fprintf(h.stdout, "No token found for %s\n", info.Service)
		_, _ = fmt.Fprintf(h.stdout, "Searched:\n")
		_, _ = fmt.Fprintf(h.stdout, "  - System keyring: Not found\n")
		_, _ = fmt.Fprintf(h.stdout, "  - Environment variable %s: Not set\n", EnvVar(info.Service))
		return nil
	}

	_, _ = fmt.Fprintf(h.stdout, "Service: %s\n", info.Service)
	_, _ = fmt.Fprintf(h.stdout, "Source: %s\n", info.Source)
	_, _ = fmt.Fprintf(h.stdout, "Token: ******** (hidden)\n")
	return nil
}

// Delete removes the token from the keyring
func (h *CLIHandler) Delete(service string) error {
	if err := h.manager.Delete(context.Background(), service); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	_, _ = fmt.Fprintf(h.stdout, "Token removed from system keyring\n")
	return nil
}
