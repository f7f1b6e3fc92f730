package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kevinaaaquil/bookreviews/service"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type contextKey string

const UserIDKey contextKey = "userID"

// TokenVerifier resolves a bearer token to a user id. *service.AuthService implements it.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (primitive.ObjectID, error)
}

// Auth rejects requests without a valid bearer token and puts the caller's user
// id in the request context.
func Auth(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				unauthorized(w, "not authorized, no token")
				return
			}
			parts := strings.SplitN(auth, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
				unauthorized(w, "not authorized, invalid authorization header")
				return
			}
			userID, err := verifier.VerifyToken(r.Context(), strings.TrimSpace(parts[1]))
			if err != nil {
				if !errors.Is(err, service.ErrUnauthenticated) {
					logrus.WithError(err).WithField("path", r.URL.Path).Error("verify token")
					writeMessage(w, http.StatusInternalServerError, "internal server error")
					return
				}
				unauthorized(w, err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func UserIDFromContext(ctx context.Context) (primitive.ObjectID, bool) {
	id, ok := ctx.Value(UserIDKey).(primitive.ObjectID)
	return id, ok
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeMessage(w, http.StatusUnauthorized, msg)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"message": msg}); err != nil {
		logrus.WithError(err).Warn("encode response")
	}
}
