// Package credentials stores the Vikunja API token in the OS keyring, one
// entry per Vikunja instance.
package credentials

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"golang.org/x/term"
)

// ServiceName is the keyring service under which tokens are stored.
const ServiceName = "kanbansync"

// DefaultAccount is used when no base URL is configured.
const DefaultAccount = "default"

// Manager handles credential operations
type Manager struct {
	keyring Keyring
}

// ManagerOption is a functional option for Manager
type ManagerOption func(*Manager)

// WithKeyring sets a custom keyring implementation
func WithKeyring(k Keyring) ManagerOption {
	return func(m *Manager) {
		m.keyring = k
	}
}

// NewManager creates a new credential manager backed by the system keyring
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		keyring: systemKeyring{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AccountFor derives the keyring account from a base URL: its lower-cased
// host (with port), or DefaultAccount when the URL is empty or unparsable.
func AccountFor(baseURL string) string {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Host == "" {
		return DefaultAccount
	}
	return strings.ToLower(u.Host)
}

// SetToken stores the token for account
func (m *Manager) SetToken(ctx context.Context, account, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token must not be empty")
	}
	return m.keyring.Set(ServiceName, account, token)
}

// Token returns the stored token for account, or ErrNotFound
func (m *Manager) Token(ctx context.Context, account string) (string, error) {
	token, err := m.keyring.Get(ServiceName, account)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrNotFound
	}
	return token, nil
}

// DeleteToken removes the token for account. Deleting a missing token is
// not an error.
func (m *Manager) DeleteToken(ctx context.Context, account string) error {
	err := m.keyring.Delete(ServiceName, account)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// Lookup returns a token lookup for config.Options.TokenFallback. A missing
// entry yields an empty token without error.
func (m *Manager) Lookup(ctx context.Context) func(baseURL string) (string, error) {
	return func(baseURL string) (string, error) {
		token, err := m.Token(ctx, AccountFor(baseURL))
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return token, err
	}
}

// PromptToken asks for a token. Input from a terminal is not echoed; any
// other reader is read line by line.
func PromptToken(reader io.Reader, writer io.Writer, account string) (string, error) {
	_, _ = fmt.Fprintf(writer, "Enter Vikunja API token for %s: ", account)

	if f, ok := reader.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(writer)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(secret)), nil
	}

	scanner := bufio.NewScanner(reader)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no input received")
}
