package common

import (
	"context"
	"strings"
)

// UserContext holds per-request user identity and preferences injected by
// the auth middleware (or X-Tally-* headers in single-tenant dev mode).
// When absent, services fall back to config defaults and the "default" user.
type UserContext struct {
	UserID          string
	DisplayCurrency string
}

type contextKey int

const userContextKey contextKey = iota

// WithUserContext stores a UserContext in the request context.
func WithUserContext(ctx context.Context, uc *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, uc)
}

// UserContextFromContext retrieves the UserContext from context, or nil if absent.
func UserContextFromContext(ctx context.Context) *UserContext {
	uc, _ := ctx.Value(userContextKey).(*UserContext)
	return uc
}

// ResolveUserID returns the UserID from context, or "default" when no user
// context is present. Used by services and storage operations that need a
// user scope.
func ResolveUserID(ctx context.Context) string {
	if uc := UserContextFromContext(ctx); uc != nil && uc.UserID != "" {
		return uc.UserID
	}
	return "default"
}

// ResolveDisplayCurrency returns the user's display currency if present,
// otherwise fallback. Currency codes are upper-cased 3-letter ISO codes.
func ResolveDisplayCurrency(ctx context.Context, fallback string) string {
	if uc := UserContextFromContext(ctx); uc != nil && uc.DisplayCurrency != "" {
		dc := strings.ToUpper(uc.DisplayCurrency)
		if len(dc) == 3 {
			return dc
		}
	}
	if fallback != "" {
		return strings.ToUpper(fallback)
	}
	return "USD"
}
