package lib

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoUser       = errors.New("lib: request carries no user identity")
	ErrNoSubject    = errors.New("lib: token has no subject")
	ErrNoBearerAuth = errors.New("lib: Authorization header is not a bearer token")
)

type userKey struct{}

func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserIDFromContext returns the user ID set by the identity middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userKey{}).(string)
	return userID, ok && userID != ""
}

// identify works out who is making the request. With a JWT secret
// configured only a valid bearer token counts; the user header is ignored.
func (s *Server) identify(r *http.Request) (string, error) {
	if len(s.opts.JWTSecret) == 0 {
		userID := strings.TrimSpace(r.Header.Get(s.opts.UserHeader))
		if userID == "" {
			return "", fmt.Errorf("%w: %s header is empty", ErrNoUser, s.opts.UserHeader)
		}
		return userID, nil
	}

	tokenString, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || tokenString == "" {
		return "", ErrNoBearerAuth
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		return s.opts.JWTSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoUser, err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoUser, err)
	}

	if sub == "" {
		return "", fmt.Errorf("%w: %w", ErrNoUser, ErrNoSubject)
	}

	return sub, nil
}

func (s *Server) requireUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.identify(r)
		if err != nil {
			s.respondUnauthorized(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
	})
}
