package refresh

import (
	"context"
	"sync"
)

// Refresher is anything that can mint a new pair from a refresh token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Pair, error)
}

// Provider resolves a Refresher on first use.
type Provider func() (Refresher, error)

// Lazy wraps build so it runs at most once; every caller gets the same result,
// including the same error.
func Lazy(build func() (Refresher, error)) Provider {
	var (
		once sync.Once
		r    Refresher
		err  error
	)
	return func() (Refresher, error) {
		once.Do(func() {
			r, err = build()
		})
		return r, err
	}
}
