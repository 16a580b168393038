package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/fjod/grocery-cart/internal/domain"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	requestIDKey contextKey = "request_id"

	requestIDHeader = "X-Request-ID"
)

// RequestIDMiddleware propagates the caller's X-Request-ID or assigns a new
// one. The request logger gets the id and the request context, so hooks can
// read the active span from every event.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		// UpdateContext keeps fields only, so the context needs a child logger.
		l := zerolog.Ctx(r.Context()).With().
			Str("request_id", requestID).
			Ctx(r.Context()).
			Logger()
		ctx := l.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))
		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the id assigned by RequestIDMiddleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Claims are the token claims issued by the identity service.
type Claims struct {
	ID   string `json:"_id"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticate verifies the bearer token and stores the caller in the request
// context.
func Authenticate(secret []byte) func(http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	keyFunc := func(*jwt.Token) (interface{}, error) { return secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				respondMessage(w, r, http.StatusUnauthorized, "No token provided")
				return
			}

			var claims Claims
			if _, err := parser.ParseWithClaims(raw, &claims, keyFunc); err != nil {
				zerolog.Ctx(r.Context()).Debug().Err(err).Msg("token rejected")
				respondMessage(w, r, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			id, err := primitive.ObjectIDFromHex(claims.ID)
			if err != nil {
				respondMessage(w, r, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			p := domain.Principal{ID: id, Role: domain.ParseRole(claims.Role)}
			zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("user_id", id.Hex()).Str("role", string(p.Role))
			})
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRoles lets through only callers holding one of roles.
func RequireRoles(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				respondMessage(w, r, http.StatusUnauthorized, "Unauthorized: No user found")
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			respondMessage(w, r, http.StatusForbidden, fmt.Sprintf("Access denied for role: %s", p.Role))
		})
	}
}

func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey).(domain.Principal)
	return p, ok
}
