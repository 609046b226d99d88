package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ideaforge-billing/internal/config"
	"ideaforge-billing/internal/infra/logging"
)

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
)

// AuthManager issues and verifies HS256 session tokens. The account id is
// the token subject.
type AuthManager struct {
	secret       []byte
	issuer       string
	cookieName   string
	ttl          time.Duration
	secureCookie bool
}

func NewAuthManager(cfg config.AuthConfig, secureCookie bool) *AuthManager {
	name := cfg.CookieName
	if name == "" {
		name = "session"
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthManager{
		secret:       []byte(cfg.JWTSecret),
		issuer:       cfg.Issuer,
		cookieName:   name,
		ttl:          ttl,
		secureCookie: secureCookie,
	}
}

type SessionClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Mint signs a session token for accountID.
func (a *AuthManager) Mint(accountID, email string) (string, error) {
	if accountID == "" {
		return "", errMissingToken
	}
	now := time.Now()
	claims := SessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// SetCookie stores token in the session cookie.
func (a *AuthManager) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.ttl.Seconds()),
		HttpOnly: true,
		Secure:   a.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *AuthManager) ParseFromRequest(r *http.Request) (*SessionClaims, error) {
	// Authorization: Bearer <jwt>
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		if len(hdr) > 7 && strings.EqualFold(hdr[:7], "bearer ") {
			return a.parse(strings.TrimSpace(hdr[7:]))
		}
		return nil, errInvalidToken
	}
	if c, err := r.Cookie(a.cookieName); err == nil && c.Value != "" {
		return a.parse(c.Value)
	}
	return nil, errMissingToken
}

func (a *AuthManager) parse(tok string) (*SessionClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &SessionClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

// Authenticate rejects requests without a valid session and puts the
// account id into the request context.
func (a *AuthManager) Authenticate() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := a.ParseFromRequest(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
				return
			}
			ctx := logging.WithAccountID(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
