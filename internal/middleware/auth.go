package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Identity is the authenticated admin behind a request
type Identity struct {
	UserID uint
	Role   string
}

// IdentityFrom returns the identity stored by Auth
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(Identity)
	return id, ok
}

// WithIdentity stores id in ctx
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// ValidateToken parses and validates an HS256 token
func ValidateToken(tokenString string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// identityFromClaims reads the user id, which issuers encode as a number or a string
func identityFromClaims(claims jwt.MapClaims) (Identity, error) {
	role, _ := claims["role"].(string)
	var id uint64
	var err error
	switch v := claims["id"].(type) {
	case float64:
		if v < 1 || v != float64(uint64(v)) {
			return Identity{}, errors.New("invalid user id")
		}
		id = uint64(v)
	case string:
		id, err = strconv.ParseUint(v, 10, 64)
		if err != nil || id == 0 {
			return Identity{}, errors.New("invalid user id")
		}
	default:
		return Identity{}, errors.New("token carries no user id")
	}
	return Identity{UserID: uint(id), Role: role}, nil
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	// Browsers cannot set headers on websocket upgrades
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("token")
	}
	return ""
}

// Auth verifies JWT bearer tokens and requires role adminRole
func Auth(secret, adminRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := bearerToken(r)
			if tokenString == "" {
				deny(w, http.StatusUnauthorized, "authorization header required")
				return
			}

			claims, err := ValidateToken(tokenString, secret)
			if err != nil {
				deny(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			identity, err := identityFromClaims(claims)
			if err != nil {
				deny(w, http.StatusUnauthorized, err.Error())
				return
			}
			if identity.Role != adminRole {
				deny(w, http.StatusForbidden, "admin role required")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func deny(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
