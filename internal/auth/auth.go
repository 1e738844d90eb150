// Package auth resolves the authenticated principal of a request from a
// signed session token.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin may grant enrollments by hand.
const RoleAdmin = "admin"

// ErrUnauthorized is returned when a request carries no valid token.
var ErrUnauthorized = errors.New("unauthorized")

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Email  string
	Role   string
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// Claims are the JWT claims of a session token. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Authenticator issues and verifies HS256 session tokens.
type Authenticator struct {
	secret []byte
	cookie string
	issuer string
	now    func() time.Time
}

// New creates an Authenticator. Tokens are read from the Authorization
// header or, failing that, from the named cookie.
func New(secret, cookieName string) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		cookie: cookieName,
		issuer: "coursehub",
		now:    time.Now,
	}
}

// Issue signs a token for p valid for ttl.
func (a *Authenticator) Issue(p Principal, ttl time.Duration) (string, error) {
	if p.UserID == "" {
		return "", errors.New("user id required")
	}
	now := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: p.Email,
		Role:  p.Role,
	}
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return ss, nil
}

// Parse verifies a token and returns its principal.
func (a *Authenticator) Parse(token string) (*Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, errors.Wrap(ErrUnauthorized, err.Error())
	}
	if claims.Subject == "" {
		return nil, errors.Wrap(ErrUnauthorized, "token has no subject")
	}
	return &Principal{UserID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}

// FromRequest extracts and verifies the request's token.
func (a *Authenticator) FromRequest(r *http.Request) (*Principal, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			return nil, errors.Wrap(ErrUnauthorized, "unsupported authorization scheme")
		}
		return a.Parse(strings.TrimSpace(token))
	}
	if a.cookie != "" {
		if c, err := r.Cookie(a.cookie); err == nil && c.Value != "" {
			return a.Parse(c.Value)
		}
	}
	return nil, ErrUnauthorized
}

// Middleware attaches the principal to the request context when the request
// carries a valid token. Requests without one pass through unchanged; the
// handlers decide whether authentication is required.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p, err := a.FromRequest(r); err == nil {
				r = r.WithContext(WithPrincipal(r.Context(), *p))
			}
			next.ServeHTTP(w, r)
		})
	}
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal attached by Middleware.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
