package job

import "context"

type ctxKey struct{}

// ContextWithID returns a context carrying the ID of the job being run.
func ContextWithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IDFromContext returns the ID of the job whose step is running, if any.
func IDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
