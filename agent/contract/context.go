package contract

import "context"

type sessionKey struct{}

// WithSessionID marks ctx as belonging to one session's turn. Tools that
// touch session-scoped data read it back with SessionIDFrom.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

func SessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
