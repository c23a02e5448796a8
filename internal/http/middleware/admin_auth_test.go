package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminJWTMissingSecret(t *testing.T) {
	mw := AdminJWT("")
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminJWTMissingHeader(t *testing.T) {
	mw := AdminJWT("secret")
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "PermissionDenied", body["message"])
}

func TestAdminJWTInvalidToken(t *testing.T) {
	mw := AdminJWT("secret")
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+signedAdminToken(t, "wrong", "jti-1"))
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminJWTValidToken(t *testing.T) {
	mw := AdminJWT("secret")
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+signedAdminToken(t, "secret", "jti-1"))
	rec := httptest.NewRecorder()

	called := false
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "admin-user", AdminActor(r.Context()))
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireCSRF(t *testing.T) {
	chain := AdminJWT("secret")(RequireCSRF(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	tests := []struct {
		name   string
		jti    string
		header string
		want   int
	}{
		{name: "matching token", jti: "abc", header: "abc", want: http.StatusNoContent},
		{name: "missing header", jti: "abc", header: "", want: http.StatusForbidden},
		{name: "mismatched header", jti: "abc", header: "xyz", want: http.StatusForbidden},
		{name: "token without jti", jti: "", header: "abc", want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/admin/appointments/1", nil)
			req.Header.Set("Authorization", "Bearer "+signedAdminToken(t, "secret", tt.jti))
			if tt.header != "" {
				req.Header.Set(CSRFHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			chain.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequireCSRFWithoutSession(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/admin/settings", nil)
	req.Header.Set(CSRFHeader, "abc")
	rec := httptest.NewRecorder()

	RequireCSRF(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIssueAdminTokenRoundTripsThroughMiddleware(t *testing.T) {
	session, err := IssueAdminToken("secret", "ops", time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, session.CSRFToken)

	req := httptest.NewRequest(http.MethodPut, "/admin/settings", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	req.Header.Set(CSRFHeader, session.CSRFToken)
	rec := httptest.NewRecorder()

	AdminJWT("secret")(RequireCSRF(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ops", AdminActor(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	_, err = IssueAdminToken("", "ops", time.Hour)
	assert.Error(t, err)
}

func signedAdminToken(t *testing.T, secret, jti string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		ID:        jti,
		Subject:   "admin-user",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
