// Package auth verifies Firebase ID tokens and puts the caller on the
// request context.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/okian/pepai/pkg/logger"
)

// FirebaseIssuer is the issuer prefix of Firebase ID tokens.
const FirebaseIssuer = "https://securetoken.google.com/"

// User is the authenticated caller.
type User struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
}

type ctxKey struct{}

// WithUser returns ctx carrying u.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext returns the caller, if any.
func FromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(ctxKey{}).(User)
	return u, ok && u.UID != ""
}

// UID returns the caller's id, or "" for anonymous requests.
func UID(ctx context.Context) string {
	u, _ := FromContext(ctx)
	return u.UID
}

// KeySource resolves a token's key id to a verification key.
type KeySource interface {
	Key(ctx context.Context, kid string) (any, error)
}

// Verifier checks ID tokens for one Firebase project.
type Verifier struct {
	keys    KeySource
	project string
	now     func() time.Time
}

// NewVerifier returns a Verifier for project.
func NewVerifier(keys KeySource, project string, opts ...VerifierOption) *Verifier {
	v := &Verifier{keys: keys, project: project, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify parses and validates token.
func (v *Verifier) Verify(ctx context.Context, token string) (User, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, ErrMissingKeyID
		}
		return v.keys.Key(ctx, kid)
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(FirebaseIssuer+v.project),
		jwt.WithAudience(v.project),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return User{}, ErrInvalidToken
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		return User{}, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	email, _ := claims["email"].(string)
	return User{UID: sub, Email: strings.ToLower(strings.TrimSpace(email))}, nil
}

// Middleware attaches the caller to each request. A missing or invalid
// token leaves the request anonymous; handlers decide what needs a user.
// With a nil verifier every request runs as mockUID, if set.
func Middleware(v *Verifier, mockUID string, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				if mockUID != "" {
					r = r.WithContext(WithUser(r.Context(), User{UID: mockUID}))
				}
				next.ServeHTTP(w, r)
				return
			}

			token := bearer(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			u, err := v.Verify(r.Context(), token)
			if err != nil {
				log.Debug(r.Context(), "token rejected", logger.String("path", r.URL.Path), logger.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// bearer reads the token from the Authorization header, or from the token
// query parameter browsers must use for websockets.
func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
