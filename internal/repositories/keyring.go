package repositories

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/desertthunder/recents/internal/models"
)

// DefaultKeyringService is the keyring service name used when none is configured.
const DefaultKeyringService = "recents"

// KeyringStore implements [models.CredentialStore] on the operating system keyring.
//
// Each key is a separate secret under one service name.
type KeyringStore struct {
	service string
	keys    Keys
}

// NewKeyringStore creates a [KeyringStore] for the given keyring service and namespace
func NewKeyringStore(service, ns string) *KeyringStore {
	if service == "" {
		service = DefaultKeyringService
	}
	return &KeyringStore{service: service, keys: NewKeys(ns)}
}

func (k *KeyringStore) Load() (models.TokenState, error) {
	values := make(map[string]string, 3)
	for _, key := range k.keys.All() {
		value, err := keyring.Get(k.service, key)
		if errors.Is(err, keyring.ErrNotFound) {
			continue
		}
		if err != nil {
			return models.TokenState{}, fmt.Errorf("failed to read %s from keyring: %w", key, err)
		}
		values[key] = value
	}
	return DecodeTokenState(k.keys, values), nil
}

func (k *KeyringStore) Save(s models.TokenState) error {
	for key, value := range EncodeTokenState(k.keys, s) {
		if err := keyring.Set(k.service, key, value); err != nil {
			return fmt.Errorf("failed to write %s to keyring: %w", key, err)
		}
	}
	return nil
}

func (k *KeyringStore) Clear() error {
	for _, key := range k.keys.All() {
		if err := keyring.Delete(k.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("failed to delete %s from keyring: %w", key, err)
		}
	}
	return nil
}
