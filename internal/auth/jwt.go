package auth

import (
	"errors"
	"fmt"
	"github.com/golang-jwt/jwt/v4"
	"net/http"
	"strings"
)

var ErrTokenInvalid = errors.New("auth: bearer token invalid")

// Claims carried by the bearer tokens the identity service issues.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens and puts the Principal on the request context.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
}

func NewAuthenticator(secret string) (*Authenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	return &Authenticator{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}, nil
}

func (a *Authenticator) Verify(raw string) (Principal, error) {
	var claims Claims
	_, err := a.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	p := Principal{UserID: strings.TrimSpace(claims.Subject), Role: ParseRole(claims.Role)}
	if !p.Authenticated() {
		return Principal{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return p, nil
}

// Require rejects requests without a valid bearer token using unauthorized.
func (a *Authenticator) Require(unauthorized http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, r)
				return
			}
			p, err := a.Verify(raw)
			if err != nil {
				unauthorized(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Sign issues a token for p. Used by local tooling and tests; production tokens come from the identity service.
func (a *Authenticator) Sign(p Principal, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = p.UserID
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: string(p.Role), RegisteredClaims: claims})
	return tok.SignedString(a.secret)
}
