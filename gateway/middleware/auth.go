package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// AuthConfig controls bearer token enforcement. Tokens are HS256-signed; the
// scope claim holds a space separated list (or an array) of granted scopes.
type AuthConfig struct {
	Enabled        bool
	HMACSecret     string
	Issuer         string
	Audience       string
	ScopeClaim     string
	OptionalPaths  []string
	AllowAnonymous bool
	ClockSkew      time.Duration
}

type contextKey string

const (
	ContextKeyToken   contextKey = "gateway.token"
	ContextKeyScopes  contextKey = "gateway.scopes"
	ContextKeySubject contextKey = "gateway.subject"
)

var errNoSecret = errors.New("auth secret not configured")

type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
	secret []byte
	parser *jwt.Parser
	nowFn  func() time.Time
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScopeClaim == "" {
		cfg.ScopeClaim = "scope"
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	a := &Authenticator{
		cfg:    cfg,
		logger: logger,
		secret: []byte(strings.TrimSpace(cfg.HMACSecret)),
		nowFn:  time.Now,
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithLeeway(cfg.ClockSkew),
		jwt.WithTimeFunc(func() time.Time { return a.nowFn() }),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	a.parser = jwt.NewParser(opts...)
	return a
}

// Enabled reports whether bearer tokens are enforced.
func (a *Authenticator) Enabled() bool { return a != nil && a.cfg.Enabled }

// Middleware rejects requests without a valid token carrying every scope in
// required. The token subject is stored on the request context.
func (a *Authenticator) Middleware(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Enabled() || (a.cfg.AllowAnonymous && a.isOptional(r.URL.Path)) {
				next.ServeHTTP(w, r)
				return
			}
			raw := extractBearer(r.Header.Get("Authorization"))
			if raw == "" {
				writeStatus(w, http.StatusUnauthorized, "Unauthenticated", "missing bearer token")
				return
			}
			claims, err := a.verify(raw)
			if err != nil {
				a.logger.Warn("token rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
				writeStatus(w, http.StatusUnauthorized, "Unauthenticated", "invalid token")
				return
			}
			scopes := scopesOf(claims, a.cfg.ScopeClaim)
			if !hasScopes(scopes, required) {
				writeStatus(w, http.StatusForbidden, "InsufficientScope", "insufficient scope")
				return
			}
			ctx := context.WithValue(r.Context(), ContextKeyToken, raw)
			ctx = context.WithValue(ctx, ContextKeyScopes, scopes)
			if sub, _ := claims.GetSubject(); sub != "" {
				ctx = context.WithValue(ctx, ContextKeySubject, sub)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubjectFromContext returns the authenticated token subject, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(ContextKeySubject).(string)
	return sub, ok && sub != ""
}

func (a *Authenticator) isOptional(path string) bool {
	for _, prefix := range a.cfg.OptionalPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (a *Authenticator) verify(raw string) (jwt.MapClaims, error) {
	if len(a.secret) == 0 {
		return nil, errNoSecret
	}
	claims := jwt.MapClaims{}
	if _, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}); err != nil {
		return nil, err
	}
	return claims, nil
}

func scopesOf(claims jwt.MapClaims, claim string) []string {
	switch v := claims[claim].(type) {
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

func hasScopes(granted, required []string) bool {
	for _, want := range required {
		found := false
		for _, have := range granted {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func extractBearer(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
