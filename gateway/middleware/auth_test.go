package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "credo-test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func echoSubject() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(Subject(r.Context())))
	})
}

func TestAuthenticatorExtractsSubject(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "credo", Audience: "ledger"}, nil)
	handler := auth.Middleware()(echoSubject())

	req := httptest.NewRequest(http.MethodPost, "/v1/deposit", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{
		"sub": "alice",
		"iss": "credo",
		"aud": []interface{}{"other", "ledger"},
		"exp": time.Now().Add(time.Hour).Unix(),
	}))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "alice", res.Body.String())
}

func TestAuthenticatorRejects(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "credo"}, nil)
	handler := auth.Middleware()(echoSubject())

	cases := map[string]string{
		"missing":      "",
		"garbage":      "Bearer not-a-jwt",
		"wrong issuer": "Bearer " + signToken(t, jwt.MapClaims{"sub": "alice", "iss": "evil"}),
		"no subject":   "Bearer " + signToken(t, jwt.MapClaims{"iss": "credo"}),
		"expired":      "Bearer " + signToken(t, jwt.MapClaims{"sub": "alice", "iss": "credo", "exp": time.Now().Add(-time.Hour).Unix()}),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/accounts/alice", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			require.Equal(t, http.StatusUnauthorized, res.Code)
		})
	}
}

func TestAdminScopeEnforced(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret}, nil)
	handler := auth.Middleware()(RequireScopes(auth.AdminScope())(echoSubject()))

	user := httptest.NewRequest(http.MethodPut, "/v1/prices/BTC", nil)
	user.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{"sub": "alice", "scope": "ledger:write"}))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, user)
	require.Equal(t, http.StatusForbidden, res.Code)

	admin := httptest.NewRequest(http.MethodPut, "/v1/prices/BTC", nil)
	admin.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{"sub": "ops", "scope": []interface{}{"credo:admin"}}))
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, admin)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "ops", res.Body.String())
}

func TestAuthDisabledUsesDevHeader(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{}, nil)
	handler := auth.Middleware()(RequireScopes(auth.AdminScope())(echoSubject()))
	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/bob", nil)
	req.Header.Set(DevUserHeader, " bob ")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "bob", res.Body.String())
}

func TestCORSEchoesAllowedOrigin(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://app.credo.example"}})(echoSubject())
	req := httptest.NewRequest(http.MethodOptions, "/v1/reserves", nil)
	req.Header.Set("Origin", "https://app.credo.example")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusNoContent, res.Code)
	require.Equal(t, "https://app.credo.example", res.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/v1/reserves", nil)
	req.Header.Set("Origin", "https://evil.example")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Empty(t, res.Header().Get("Access-Control-Allow-Origin"))
}
