package auth

import "context"

// UserClaims carries the identity of the authenticated caller.
type UserClaims struct {
	UID   string
	Email string
}

type contextKey string

const userClaimsKey contextKey = "userClaims"

func withUserClaims(ctx context.Context, claims *UserClaims) context.Context {
	return context.WithValue(ctx, userClaimsKey, claims)
}

// GetUserClaims returns the claims attached to the request context.
func GetUserClaims(ctx context.Context) (*UserClaims, bool) {
	claims, ok := ctx.Value(userClaimsKey).(*UserClaims)
	return claims, ok
}
