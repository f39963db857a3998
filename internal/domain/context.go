package domain

import "context"

type ctxKey string

const threadCtxKey ctxKey = "thread_id"

// ContextWithThreadID returns a new context carrying the thread ID.
func ContextWithThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, threadCtxKey, threadID)
}

// ThreadIDFromContext extracts the thread ID from the context.
// Returns empty string if not set.
func ThreadIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(threadCtxKey).(string); ok {
		return v
	}
	return ""
}
