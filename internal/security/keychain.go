package security

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeychainService is the service name passwords are filed under
const KeychainService = "irc-engine"

// Keychain stores connection secrets in the OS keychain
type Keychain struct {
	service string
}

// NewKeychain creates a keychain using the default service name
func NewKeychain() *Keychain {
	return &Keychain{service: KeychainService}
}

// StorePassword saves password under account. An empty password deletes it.
func (k *Keychain) StorePassword(account, password string) error {
	if password == "" {
		return k.DeletePassword(account)
	}
	if err := keyring.Set(k.service, account, password); err != nil {
		return fmt.Errorf("failed to store password in keychain: %w", err)
	}
	return nil
}

// GetPassword returns the password saved under account, "" if there is none
func (k *Keychain) GetPassword(account string) (string, error) {
	password, err := keyring.Get(k.service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get password from keychain: %w", err)
	}
	return password, nil
}

// DeletePassword removes the password saved under account
func (k *Keychain) DeletePassword(account string) error {
	if err := keyring.Delete(k.service, account); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete password from keychain: %w", err)
	}
	return nil
}

// Account names the keychain entry of a secret for a server, e.g.
// "sasl:alice@irc.example.net"
func Account(kind, user, server string) string {
	return kind + ":" + user + "@" + server
}

// Resolve returns explicit when set, otherwise the password stored under
// account
func (k *Keychain) Resolve(explicit, account string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	return k.GetPassword(account)
}
