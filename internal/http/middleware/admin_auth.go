package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const adminClaimsKey contextKey = "adminClaims"

// CSRFHeader carries the per-session token that must match the JWT id.
const CSRFHeader = "X-CSRF-Token"

const (
	reasonPermissionDenied = "PermissionDenied"
	reasonInvalidToken     = "InvalidToken"
)

// AdminJWT enforces an HMAC-signed JWT for admin endpoints. Requests without a
// valid bearer token are rejected with 401 PermissionDenied.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				deny(w, http.StatusUnauthorized, reasonPermissionDenied)
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				deny(w, http.StatusUnauthorized, reasonPermissionDenied)
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				deny(w, http.StatusUnauthorized, reasonPermissionDenied)
				return
			}
			ctx := context.WithValue(r.Context(), adminClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCSRF rejects admin requests whose X-CSRF-Token header does not equal
// the session token id (jti). It must run after AdminJWT.
func RequireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := AdminClaimsFromContext(r.Context())
		if !ok {
			deny(w, http.StatusUnauthorized, reasonPermissionDenied)
			return
		}
		got := strings.TrimSpace(r.Header.Get(CSRFHeader))
		if claims.ID == "" || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(claims.ID)) != 1 {
			deny(w, http.StatusForbidden, reasonInvalidToken)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminClaimsFromContext returns admin JWT claims if present.
func AdminClaimsFromContext(ctx context.Context) (jwt.RegisteredClaims, bool) {
	claims, ok := ctx.Value(adminClaimsKey).(jwt.RegisteredClaims)
	return claims, ok
}

// AdminActor returns the subject of the admin session, or "" outside one.
func AdminActor(ctx context.Context) string {
	claims, ok := AdminClaimsFromContext(ctx)
	if !ok {
		return ""
	}
	return claims.Subject
}

// AdminSession is a signed admin token and the CSRF value clients echo back.
type AdminSession struct {
	Token     string    `json:"token"`
	CSRFToken string    `json:"csrf_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueAdminToken signs a session for subject valid for ttl.
func IssueAdminToken(secret, subject string, ttl time.Duration) (AdminSession, error) {
	if secret == "" {
		return AdminSession{}, errors.New("middleware: admin secret required")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	now := time.Now().UTC()
	expires := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AdminSession{}, err
	}
	return AdminSession{Token: signed, CSRFToken: claims.ID, ExpiresAt: expires}, nil
}

func deny(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": reason,
	})
}
