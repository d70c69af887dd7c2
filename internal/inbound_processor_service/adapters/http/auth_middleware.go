package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const AuthenticatedOperatorContextKey = ContextKey("authenticatedOperator")

// apiKeyOperator names callers that authenticated with the static API token.
const apiKeyOperator = "api-key"

var errAuthNotConfigured = errors.New("api authentication not configured")

// APIAuth guards the instance API. Callers present either the static API
// token ("ApiKey <token>") or an HS256 JWT ("Bearer <jwt>") signed with the
// configured secret.
type APIAuth struct {
	apiToken  []byte
	jwtSecret []byte
	logger    *slog.Logger
}

func NewAPIAuth(apiToken, jwtSecret string, logger *slog.Logger) *APIAuth {
	a := &APIAuth{logger: logger.With("component", "api_auth")}
	if apiToken != "" {
		a.apiToken = []byte(apiToken)
	}
	if jwtSecret != "" {
		a.jwtSecret = []byte(jwtSecret)
	}
	return a
}

// Enabled reports whether any credential is configured.
func (a *APIAuth) Enabled() bool {
	return len(a.apiToken) > 0 || len(a.jwtSecret) > 0
}

// Middleware rejects requests without valid credentials with 401 and stores
// the authenticated operator name in the request context.
func (a *APIAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			a.logger.WarnContext(ctx, "Authorization header missing", "path", r.URL.Path)
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[1] == "" {
			a.logger.WarnContext(ctx, "Invalid Authorization header format")
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		var (
			operator string
			err      error
		)
		switch parts[0] {
		case "ApiKey":
			operator, err = a.checkAPIKey(parts[1])
		case "Bearer":
			operator, err = a.checkJWT(parts[1])
		default:
			a.logger.WarnContext(ctx, "Unsupported Authorization scheme", "scheme", parts[0])
			http.Error(w, "Unsupported Authorization scheme", http.StatusUnauthorized)
			return
		}
		if err != nil {
			a.logger.WarnContext(ctx, "Token validation failed", "scheme", parts[0], "error", err)
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx = context.WithValue(ctx, AuthenticatedOperatorContextKey, operator)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *APIAuth) checkAPIKey(token string) (string, error) {
	if len(a.apiToken) == 0 {
		return "", errAuthNotConfigured
	}
	if subtle.ConstantTimeCompare([]byte(token), a.apiToken) != 1 {
		return "", errors.New("api key mismatch")
	}
	return apiKeyOperator, nil
}

func (a *APIAuth) checkJWT(tokenString string) (string, error) {
	if len(a.jwtSecret) == 0 {
		return "", errAuthNotConfigured
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

// OperatorFromContext returns the operator recorded by Middleware.
func OperatorFromContext(ctx context.Context) string {
	operator, _ := ctx.Value(AuthenticatedOperatorContextKey).(string)
	return operator
}

// GenerateAPIToken signs an HS256 JWT for subject that Middleware accepts
// until now+expiresIn.
func GenerateAPIToken(subject, secret string, expiresIn time.Duration, now time.Time) (string, time.Time, error) {
	if strings.TrimSpace(subject) == "" {
		return "", time.Time{}, errors.New("subject is required")
	}
	if secret == "" {
		return "", time.Time{}, errors.New("jwt secret is required")
	}
	expiresAt := now.Add(expiresIn)
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}
