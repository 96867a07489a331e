// Package secrets resolves credentials such as the bot token. Environment
// variables win so serverless deployments can inject them; the system
// keyring serves local runs.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const serviceName = "dirtylaunderer"

// Well-known secret names.
const (
	TelegramBotToken = "telegram-bot-token"
	GitHubToken      = "github-token"
	BucketAccessKey  = "bucket-access-key"
	BucketSecretKey  = "bucket-secret-key"
)

// ErrNotFound is returned when a secret is in neither the environment nor the keyring.
var ErrNotFound = errors.New("secret not found")

// Store looks secrets up by name.
type Store struct {
	lookupEnv func(string) (string, bool)
	keyring   func(service, account string) (string, error)
	setKey    func(service, account, value string) error
}

// New returns a Store backed by the process environment and the system keyring.
func New() *Store {
	return &Store{
		lookupEnv: os.LookupEnv,
		keyring:   keyring.Get,
		setKey:    keyring.Set,
	}
}

// EnvName maps a secret name to its environment variable,
// e.g. "telegram-bot-token" to "TELEGRAM_BOT_TOKEN".
func EnvName(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// Get returns the named secret.
func (s *Store) Get(name string) (string, error) {
	if v, ok := s.lookupEnv(EnvName(name)); ok && v != "" {
		return v, nil
	}

	v, err := s.keyring(serviceName, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("read keyring secret %s: %w", name, err)
	}
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return v, nil
}

// Lookup is like Get but treats a missing secret as empty.
func (s *Store) Lookup(name string) (string, error) {
	v, err := s.Get(name)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

// Set stores a secret in the system keyring.
func (s *Store) Set(name, value string) error {
	if err := s.setKey(serviceName, name, value); err != nil {
		return fmt.Errorf("write keyring secret %s: %w", name, err)
	}
	return nil
}
