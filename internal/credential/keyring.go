package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/99designs/keyring"
)

const (
	serviceName = "taskpulse"

	// TokenKey is the keyring entry holding the API bearer token.
	TokenKey = "api-token"

	// TokenEnv overrides the keyring when set.
	TokenEnv = "TASKPULSE_TOKEN"
)

// ErrNoToken is returned when neither the environment nor the keyring holds
// a token.
var ErrNoToken = errors.New("no API token: run `taskpulse login --token <token>` or set " + TokenEnv)

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(home, ".config", "taskpulse", "credentials"),
		FilePasswordFunc:         keyring.FixedStringPrompt("taskpulse-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "taskpulse " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	if err := ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// Token returns the API token from TASKPULSE_TOKEN or, failing that, the
// keyring.
func Token() (string, error) {
	return tokenFrom(os.Getenv, Get)
}

func tokenFrom(getenv func(string) string, get func(string) (string, error)) (string, error) {
	if tok := strings.TrimSpace(getenv(TokenEnv)); tok != "" {
		return tok, nil
	}
	tok, err := get(TokenKey)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", ErrNoToken
		}
		return "", err
	}
	if tok = strings.TrimSpace(tok); tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}
