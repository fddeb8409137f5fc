package passwordless

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithSessionContext sets the session claims in the given context
func WithSessionContext(ctx context.Context, claims *SessionClaims) context.Context {
	return context.WithValue(ctx, sessionCtxKey, claims)
}

// SessionFromContext finds the session claims from the context.
func SessionFromContext(ctx context.Context) (*SessionClaims, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(*SessionClaims)
	return raw, ok && raw != nil
}

// SessionFromFiber extracts the session claims stored by RequireSession.
func SessionFromFiber(c *fiber.Ctx) (*SessionClaims, bool) {
	if c == nil {
		return nil, false
	}
	return SessionFromContext(c.UserContext())
}
