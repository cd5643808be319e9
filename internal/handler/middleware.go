package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const operatorKey contextKey = "operator"

// operatorClaims are the claims the embedding application puts in operator
// tokens: sub is the operator ID, name is shown in the activity journal.
type operatorClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// OperatorAuthMiddleware validates HS256 Bearer tokens and injects the
// operator into the request context.
func OperatorAuthMiddleware(secret []byte, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			op, err := parseOperatorToken(parts[1], secret)
			if err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), operatorKey, op)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseOperatorToken(tokenString string, secret []byte) (domain.Operator, error) {
	claims := &operatorClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.Operator{}, &domain.ErrUnauthorized{Message: "invalid token: " + err.Error()}
	}
	if claims.Subject == "" {
		return domain.Operator{}, &domain.ErrUnauthorized{Message: "token has no subject"}
	}
	return domain.Operator{ID: claims.Subject, Name: claims.Name}, nil
}

// OperatorFromContext extracts the authenticated operator from context.
func OperatorFromContext(ctx context.Context) (domain.Operator, bool) {
	op, ok := ctx.Value(operatorKey).(domain.Operator)
	return op, ok
}
