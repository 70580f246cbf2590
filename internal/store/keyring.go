package store

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const serviceName = "simpleice"

// ErrSecretNotFound is returned when the keyring holds no secret for a user.
var ErrSecretNotFound = errors.New("secret not found in keyring")

// KeyringSecretStore persists mail account secrets in the OS keyring
// (macOS Keychain, Windows Credential Manager, or Linux Secret Service).
type KeyringSecretStore struct{}

// NewKeyringSecretStore returns a new KeyringSecretStore.
func NewKeyringSecretStore() *KeyringSecretStore {
	return &KeyringSecretStore{}
}

// SaveSecret stores the secret for the given mail account username.
func (k *KeyringSecretStore) SaveSecret(username, secret string) error {
	if err := keyring.Set(serviceName, username, secret); err != nil {
		return fmt.Errorf("failed to save secret to keyring: %w", err)
	}
	return nil
}

// LoadSecret retrieves the secret for the given mail account username.
func (k *KeyringSecretStore) LoadSecret(username string) (string, error) {
	secret, err := keyring.Get(serviceName, username)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrSecretNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load secret from keyring: %w", err)
	}
	return secret, nil
}

// DeleteSecret removes the secret for the given mail account username.
func (k *KeyringSecretStore) DeleteSecret(username string) error {
	if err := keyring.Delete(serviceName, username); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrSecretNotFound
		}
		return fmt.Errorf("failed to delete secret from keyring: %w", err)
	}
	return nil
}
