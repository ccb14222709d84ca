package toolmanager

import "context"

type dispatchIDKey struct{}

// WithDispatchID attaches the dispatch correlation ID to a context. Every
// ExecuteSelectedTools round stamps its own.
func WithDispatchID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, dispatchIDKey{}, id)
}

// DispatchIDFromContext returns the dispatch ID, or "" when called outside a
// dispatch.
func DispatchIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(dispatchIDKey{}).(string); ok {
		return id
	}
	return ""
}
