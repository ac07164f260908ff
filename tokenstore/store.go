package tokenstore

import (
	"context"
	"errors"
)

// Persisted entry names.
const (
	KeyAccess  = "access_token"
	KeyRefresh = "refresh_token"
	// KeyLegacy is the single bearer token written before refresh rotation existed.
	KeyLegacy = "auth_token"
)

// Keys lists every entry a store may hold. Clear removes all of them.
var Keys = []string{KeyAccess, KeyRefresh, KeyLegacy}

var (
	// ErrUnknownKey is returned when a caller uses a name outside [Keys].
	ErrUnknownKey = errors.New("tokenstore: unknown key")
	// ErrUnavailable wraps backend I/O failures.
	ErrUnavailable = errors.New("tokenstore: backend unavailable")
	// ErrCorrupt is returned when persisted data cannot be decoded.
	ErrCorrupt = errors.New("tokenstore: corrupt data")
	// ErrLockTimeout is returned when a session lock is still held by another
	// process when the caller's context ends.
	ErrLockTimeout = errors.New("tokenstore: session lock timeout")
)

// Store is durable key-value storage for session credentials.
//
// Get reports absent entries with ok=false; an empty value is treated as absent.
type Store interface {
	Get(ctx context.Context, name string) (value string, ok bool, err error)
	Set(ctx context.Context, name, value string) error
	Delete(ctx context.Context, name string) error
	Clear(ctx context.Context) error
}

// PairWriter is implemented by stores that can persist a rotated token pair in a
// single write.
type PairWriter interface {
	SetPair(ctx context.Context, access, refresh string) error
}

// Locker is implemented by stores shared between processes. Holding the lock
// makes refresh single-flight across every process using the store; the engine
// takes it after its own mutex and re-reads the tokens once it holds it.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// SetPair writes both tokens, in one operation when the store supports it.
func SetPair(ctx context.Context, s Store, access, refresh string) error {
	if pw, ok := s.(PairWriter); ok {
		return pw.SetPair(ctx, access, refresh)
	}
	if err := s.Set(ctx, KeyAccess, access); err != nil {
		return err
	}
	return s.Set(ctx, KeyRefresh, refresh)
}

func validKey(name string) bool {
	for _, k := range Keys {
		if k == name {
			return true
		}
	}
	return false
}
