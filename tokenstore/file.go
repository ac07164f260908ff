package tokenstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"filippo.io/age"
)

// FileStore keeps all entries in one age-encrypted file. Every write re-seals the
// whole record and replaces the file atomically, so a crash leaves either the old
// or the new pair on disk.
type FileStore struct {
	path     string
	identity *age.X25519Identity
	now      func() time.Time

	mu sync.Mutex
}

// NewFileStore opens (lazily) the sealed file at path. The identity decrypts the
// file and its recipient encrypts new versions.
func NewFileStore(path string, identity *age.X25519Identity) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("tokenstore: file path required")
	}
	if identity == nil {
		return nil, errors.New("tokenstore: age identity required")
	}
	return &FileStore{
		path:     path,
		identity: identity,
		now:      time.Now,
	}, nil
}

// LoadOrCreateIdentity reads an X25519 identity from path, generating and writing
// a new one with mode 0600 when the file does not exist.
func LoadOrCreateIdentity(path string) (*age.X25519Identity, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		identity, err := age.ParseX25519Identity(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("parsing identity %s: %w", path, err)
		}
		return identity, nil
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading identity %s: %w", path, err)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating identity directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(identity.String()+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("writing identity %s: %w", path, err)
	}
	return identity, nil
}

func (f *FileStore) Get(_ context.Context, name string) (string, bool, error) {
	if !validKey(name) {
		return "", false, ErrUnknownKey
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.load()
	if err != nil {
		return "", false, err
	}
	v := entries[name]
	return v, v != "", nil
}

func (f *FileStore) Set(_ context.Context, name, value string) error {
	if !validKey(name) {
		return ErrUnknownKey
	}
	return f.update(func(entries map[string]string) {
		if value == "" {
			delete(entries, name)
			return
		}
		entries[name] = value
	})
}

func (f *FileStore) SetPair(_ context.Context, access, refresh string) error {
	return f.update(func(entries map[string]string) {
		entries[KeyAccess] = access
		entries[KeyRefresh] = refresh
	})
}

func (f *FileStore) Delete(_ context.Context, name string) error {
	if !validKey(name) {
		return ErrUnknownKey
	}
	return f.update(func(entries map[string]string) {
		delete(entries, name)
	})
}

func (f *FileStore) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (f *FileStore) update(mutate func(map[string]string)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.load()
	if err != nil {
		return err
	}
	mutate(entries)
	return f.store(entries)
}

func (f *FileStore) load() (map[string]string, error) {
	sealed, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]string, len(Keys)), nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	reader, err := age.Decrypt(bytes.NewReader(sealed), f.identity)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypting: %v", ErrCorrupt, err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: reading plaintext: %v", ErrCorrupt, err)
	}
	return decodeRecord(plaintext)
}

func (f *FileStore) store(entries map[string]string) error {
	plaintext, err := encodeRecord(entries, f.now().Unix())
	if err != nil {
		return err
	}

	var sealed bytes.Buffer
	writer, err := age.Encrypt(&sealed, f.identity.Recipient())
	if err != nil {
		return fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalizing age encryption: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if _, err := tmp.Write(sealed.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
