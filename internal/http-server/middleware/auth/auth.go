// Package auth turns a bearer access token into the caller of a request.
// Tokens are HS256 JWTs issued by the identity service with the user id in
// "sub" and the user's role in "role".
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mentor-schedule-service/internal/models"
	"mentor-schedule-service/pkg/response"
	"mentor-schedule-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/golang-jwt/jwt/v5"
)

type ctxKey struct{}

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

var errNoToken = errors.New("missing bearer token")

// CallerFrom returns the caller stored by the middleware.
func CallerFrom(ctx context.Context) (models.Caller, bool) {
	c, ok := ctx.Value(ctxKey{}).(models.Caller)
	return c, ok
}

// WithCaller stores c in ctx.
func WithCaller(ctx context.Context, c models.Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// Issue signs an access token for userID.
func Issue(secret, userID string, role models.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parse(r *http.Request, secret []byte) (models.Caller, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return models.Caller{}, errNoToken
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return models.Caller{}, err
	}

	if claims.Subject == "" {
		return models.Caller{}, errors.New("token has no subject")
	}
	role := models.Role(claims.Role)
	if !role.Valid() {
		return models.Caller{}, errors.New("token has an unknown role")
	}

	return models.Caller{UserID: claims.Subject, Role: role}, nil
}

// New rejects requests without a valid token.
func New(log *slog.Logger, secret string) func(next http.Handler) http.Handler {
	key := []byte(secret)

	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			caller, err := parse(r, key)
			if err != nil {
				log.Warn("Unauthorized request",
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.String("path", r.URL.Path),
					sl.Err(err),
				)
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error(string(response.UNAUTHORIZED), "invalid or missing access token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		}
		return http.HandlerFunc(fn)
	}
}

// Optional stores the caller when a valid token is present and lets
// anonymous requests through. A present but invalid token is rejected.
func Optional(log *slog.Logger, secret string) func(next http.Handler) http.Handler {
	required := New(log, secret)

	return func(next http.Handler) http.Handler {
		withToken := required(next)
		fn := func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			withToken.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}
