package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"credo/observability/logging"
)

// DevUserHeader names the caller when authentication is disabled. It is
// ignored whenever tokens are enforced.
const DevUserHeader = "X-Credo-User"

type AuthConfig struct {
	Enabled    bool
	HMACSecret string
	Issuer     string
	Audience   string
	ScopeClaim string
	AdminScope string
	ClockSkew  time.Duration
}

type contextKey string

const (
	ContextKeyToken   contextKey = "credo.token"
	ContextKeyScopes  contextKey = "credo.scopes"
	ContextKeySubject contextKey = "credo.subject"
)

// Subject returns the authenticated account name carried by ctx.
func Subject(ctx context.Context) string {
	sub, _ := ctx.Value(ContextKeySubject).(string)
	return sub
}

// Scopes returns the scopes granted to the caller.
func Scopes(ctx context.Context) []string {
	scopes, _ := ctx.Value(ContextKeyScopes).([]string)
	return scopes
}

type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScopeClaim == "" {
		cfg.ScopeClaim = "scope"
	}
	if cfg.AdminScope == "" {
		cfg.AdminScope = "credo:admin"
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{
		cfg:    cfg,
		logger: logger,
		secret: []byte(strings.TrimSpace(cfg.HMACSecret)),
		now:    time.Now,
	}
}

// AdminScope is the scope required by administrative routes.
func (a *Authenticator) AdminScope() string { return a.cfg.AdminScope }

// Middleware authenticates the request and stores the subject and scopes in
// the request context. Callers lacking any of requiredScopes get 403.
func (a *Authenticator) Middleware(requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.cfg.Enabled {
				ctx := context.WithValue(r.Context(), ContextKeySubject, strings.TrimSpace(r.Header.Get(DevUserHeader)))
				ctx = context.WithValue(ctx, ContextKeyScopes, []string{a.cfg.AdminScope})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			tokenString := extractBearer(r.Header.Get("Authorization"))
			if tokenString == "" {
				writeAuthError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}
			claims, err := a.parseToken(tokenString)
			if err == nil {
				err = validateClaims(claims, a.cfg.Issuer, a.cfg.Audience)
			}
			if err != nil {
				a.logger.Info("token rejected",
					slog.String("path", r.URL.Path),
					logging.MaskField("token", tokenString),
					slog.String("reason", err.Error()))
				writeAuthError(w, http.StatusUnauthorized, "unauthenticated", "invalid token")
				return
			}
			subject, _ := claims.GetSubject()
			scopes := extractScopes(claims, a.cfg.ScopeClaim)
			if len(requiredScopes) > 0 && !hasScopes(scopes, requiredScopes) {
				writeAuthError(w, http.StatusForbidden, "forbidden", "insufficient scope")
				return
			}
			ctx := context.WithValue(r.Context(), ContextKeyToken, tokenString)
			ctx = context.WithValue(ctx, ContextKeyScopes, scopes)
			ctx = context.WithValue(ctx, ContextKeySubject, strings.TrimSpace(subject))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScopes rejects requests whose context lacks the scopes. It must run
// after Middleware.
func RequireScopes(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasScopes(Scopes(r.Context()), required) {
				writeAuthError(w, http.StatusForbidden, "forbidden", "insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("auth secret not configured")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.cfg.ClockSkew), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

// validateClaims checks the claims jwt.Parse leaves to the caller. Expiry is
// already enforced by the parser.
func validateClaims(claims jwt.MapClaims, issuer, audience string) error {
	if issuer != "" {
		if value, ok := claims["iss"].(string); !ok || value != issuer {
			return errors.New("issuer mismatch")
		}
	}
	if audience != "" {
		switch val := claims["aud"].(type) {
		case string:
			if val != audience {
				return errors.New("audience mismatch")
			}
		case []interface{}:
			matched := false
			for _, entry := range val {
				if s, ok := entry.(string); ok && s == audience {
					matched = true
					break
				}
			}
			if !matched {
				return errors.New("audience mismatch")
			}
		default:
			return errors.New("audience mismatch")
		}
	}
	if sub, _ := claims.GetSubject(); strings.TrimSpace(sub) == "" {
		return errors.New("subject missing")
	}
	return nil
}

func extractScopes(claims jwt.MapClaims, scopeClaim string) []string {
	raw, ok := claims[scopeClaim]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func hasScopes(scopes []string, required []string) bool {
	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		set[scope] = struct{}{}
	}
	for _, req := range required {
		if _, ok := set[req]; !ok {
			return false
		}
	}
	return true
}

func extractBearer(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"code":"` + code + `","error":"` + message + `"}`))
}
