package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// Middleware validates bearer tokens and attaches UserClaims to the
// request context. Requests without a valid token are rejected before
// they reach a handler.
type Middleware struct {
	secret []byte
	log    *logrus.Logger
}

func NewMiddleware(secret string, log *logrus.Logger) *Middleware {
	return &Middleware{secret: []byte(secret), log: log}
}

// Handler wraps next with bearer token authentication.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.parseToken(r)
		if err != nil {
			m.log.WithError(err).WithField("path", r.URL.Path).Debug("rejected unauthenticated request")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"code":"UNAUTHENTICATED","message":"missing or invalid bearer token"}}`)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUserClaims(r.Context(), claims)))
	})
}

func (m *Middleware) parseToken(r *http.Request) (*UserClaims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, fmt.Errorf("missing authorization header")
	}
	raw := strings.TrimPrefix(header, "Bearer ")
	if raw == header {
		return nil, fmt.Errorf("authorization header is not a bearer token")
	}

	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", token.Method.Alg())
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type")
	}
	sub, _ := mapClaims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	email, _ := mapClaims["email"].(string)
	return &UserClaims{UID: sub, Email: email}, nil
}

// LocalDevHandler injects a fixed identity so the API can be exercised
// without a token. The X-User-ID header overrides the default identity,
// which keeps per-user state distinguishable in manual testing.
func LocalDevHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := r.Header.Get("X-User-ID")
		if uid == "" {
			uid = "local-dev-user"
		}
		claims := &UserClaims{UID: uid, Email: "dev@localhost"}
		next.ServeHTTP(w, r.WithContext(withUserClaims(r.Context(), claims)))
	})
}
