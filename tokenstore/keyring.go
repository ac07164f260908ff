package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the credential-manager service name used when none is
// configured.
const DefaultKeyringService = "weeverytrip"

// KeyringStore stores each entry as a separate secret in the OS credential manager
// (Keychain, Secret Service, Windows Credential Manager).
type KeyringStore struct {
	service string
}

func NewKeyringStore(service string) *KeyringStore {
	service = strings.TrimSpace(service)
	if service == "" {
		service = DefaultKeyringService
	}
	return &KeyringStore{service: service}
}

func (k *KeyringStore) Get(_ context.Context, name string) (string, bool, error) {
	if !validKey(name) {
		return "", false, ErrUnknownKey
	}
	v, err := keyring.Get(k.service, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v, v != "", nil
}

func (k *KeyringStore) Set(ctx context.Context, name, value string) error {
	if !validKey(name) {
		return ErrUnknownKey
	}
	if value == "" {
		return k.Delete(ctx, name)
	}
	if err := keyring.Set(k.service, name, value); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (k *KeyringStore) Delete(_ context.Context, name string) error {
	if !validKey(name) {
		return ErrUnknownKey
	}
	if err := keyring.Delete(k.service, name); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (k *KeyringStore) Clear(ctx context.Context) error {
	var errs []error
	for _, name := range Keys {
		if err := k.Delete(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
