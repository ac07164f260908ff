package weeverytrip

import "context"

type withoutAuthContextKey struct{}

// WithoutAuth marks requests built with ctx as anonymous: [Engine.Decorate]
// leaves them untouched. Use it for public endpoints such as login.
func WithoutAuth(ctx context.Context) context.Context {
	return context.WithValue(ctx, withoutAuthContextKey{}, true)
}

func withoutAuthFromContext(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(withoutAuthContextKey{}).(bool)
	return v
}
