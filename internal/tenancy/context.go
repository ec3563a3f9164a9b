package tenancy

import "context"

type ctxKey string

const userKey ctxKey = "flotteq.user_id"

// WithUserID stores the authenticated user id in context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey, userID)
}

// UserIDFromContext extracts the user id if present.
func UserIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(userKey)
	if val == nil {
		return "", false
	}
	userID, ok := val.(string)
	return userID, ok && userID != ""
}
