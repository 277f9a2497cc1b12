package api

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

// Identity is the authenticated participant attached to a connection.
type Identity struct {
	UserID string
	Role   string
}

// Auth validates incoming JWT tokens.
type Auth struct {
	JWKS       *keyfunc.JWKS
	Audience   string
	Issuer     string
	TestMode   bool
	TestSecret []byte
}

// NewAuth creates a new Auth instance.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string) *Auth {
	a := &Auth{JWKS: jwks, Audience: audience, Issuer: issuer}
	if os.Getenv("AUTH_TEST_MODE") == "1" {
		secret := os.Getenv("TEST_JWT_SECRET")
		if secret == "" {
			panic("TEST_JWT_SECRET must be set when AUTH_TEST_MODE=1")
		}
		a.TestMode = true
		a.TestSecret = []byte(secret)
	}
	return a
}

// IdentityFromAuthHeader extracts the participant identity from the
// Authorization header.
func (a *Auth) IdentityFromAuthHeader(h string) (Identity, error) {
	if h == "" {
		return Identity{}, errors.New("missing authorization header")
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 {
		return Identity{}, errors.New("bad auth header")
	}

	tokenStr := parts[1]
	if strings.Count(tokenStr, ".") != 2 {
		return Identity{}, errors.New("bad auth header")
	}

	if a.TestMode {
		token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.TestSecret, nil
		})
		if err != nil {
			return Identity{}, err
		}
		return identityFromClaims(token, false, a)
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	token, err := parser.Parse(tokenStr, a.JWKS.Keyfunc)
	if err != nil {
		return Identity{}, err
	}
	return identityFromClaims(token, true, a)
}

func identityFromClaims(token *jwt.Token, verify bool, a *Auth) (Identity, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("invalid claims")
	}

	if verify {
		now := time.Now().Add(time.Minute).Unix()
		if !claims.VerifyExpiresAt(now, true) {
			return Identity{}, errors.New("token expired")
		}
		if !claims.VerifyNotBefore(now, false) {
			return Identity{}, errors.New("token not valid yet")
		}
		if !claims.VerifyAudience(a.Audience, false) {
			return Identity{}, errors.New("invalid audience")
		}
		if !claims.VerifyIssuer(a.Issuer, false) {
			return Identity{}, errors.New("invalid issuer")
		}
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Identity{}, errors.New("missing sub")
	}
	role, _ := claims["role"].(string)
	return Identity{UserID: sub, Role: role}, nil
}
