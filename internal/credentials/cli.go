package credentials

import (
	"context"
	"encoding/json"
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

// Set prompts for a token and stores it for account
func (h *CLIHandler) Set(ctx context.Context, account string) error {
	token, err := PromptToken(h.stdin, h.stderr, account)
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}

	if err := h.manager.SetToken(ctx, account, token); err != nil {
		if errors.Is(err, ErrKeyringNotAvailable) {
			return h.keyringNotAvailableError(err)
		}
		return fmt.Errorf("failed to store token: %w", err)
	}

	return h.writeJSON(map[string]interface{}{"action": "stored", "account": account})
}

// keyringNotAvailableError points at the alternatives when the OS keyring
// cannot be used.
func (h *CLIHandler) keyringNotAvailableError(err error) error {
	return fmt.Errorf("%w; set VIKUNJA_API_TOKEN or add 'export VIKUNJA_API_TOKEN=...' to the rc file instead", err)
}

// Get reports whether a token is stored for account. The token itself is
// never printed.
func (h *CLIHandler) Get(ctx context.Context, account string) error {
	_, err := h.manager.Token(ctx, account)
	found := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to read token: %w", err)
	}

	return h.writeJSON(map[string]interface{}{
		"account": account,
		"service": ServiceName,
		"found":   found,
	})
}

// Delete removes the token for account
func (h *CLIHandler) Delete(ctx context.Context, account string) error {
	if err := h.manager.DeleteToken(ctx, account); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return h.writeJSON(map[string]interface{}{"action": "deleted", "account": account})
}

func (h *CLIHandler) writeJSON(v interface{}) error {
	enc := json.NewEncoder(h.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
