package flows

import "context"

// TeardownStore is the token store subset needed to end a session.
type TeardownStore interface {
	Clear(ctx context.Context) error
}

// TeardownDeps captures logout flow dependencies.
type TeardownDeps struct {
	Store TeardownStore
	// Invalidate flips the session flag and reports whether it transitioned.
	Invalidate func() bool
}

// TeardownResult reports what a teardown did.
type TeardownResult struct {
	Transitioned bool
	ClearErr     error
}

// RunTeardown clears persisted tokens, then invalidates the session. The flag is
// flipped even when clearing fails so no further request is decorated as valid.
func RunTeardown(ctx context.Context, deps TeardownDeps) TeardownResult {
	var res TeardownResult
	if deps.Store != nil {
		res.ClearErr = deps.Store.Clear(ctx)
	}
	res.Transitioned = deps.Invalidate()
	return res
}
