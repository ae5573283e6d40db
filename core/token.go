package core

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenInvalid      = errors.New("token invalid")
	ErrUnrecognizedToken = errors.New("unrecognized token")
)

type AuthClaims struct {
	DisplayName string `json:"name"`
	Role        Role   `json:"role"`
	jwt.RegisteredClaims
}

func NewClaims(identity Identity, exp time.Time) *AuthClaims {
	return &AuthClaims{
		DisplayName: identity.DisplayName,
		Role:        identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    "relay",
		},
	}
}

func NewToken(identity Identity, expiration time.Duration, secret []byte) (string, time.Time, error) {
	exp := time.Now().Add(expiration)
	claims := NewClaims(identity, exp)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(secret)
	return signed, exp, err
}

// VerifyToken parses and validates a bearer token and returns the identity
// embedded in it. A token that fails any check yields no identity.
func VerifyToken(token string, secret []byte) (Identity, error) {
	claims := &AuthClaims{}
	_token, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, ErrTokenInvalid
	}

	if !_token.Valid {
		return Identity{}, ErrTokenInvalid
	}

	identity := Identity{
		UserID:      claims.Subject,
		DisplayName: claims.DisplayName,
		Role:        claims.Role,
	}
	if identity.UserID == "" || !identity.Role.Valid() {
		return Identity{}, ErrUnrecognizedToken
	}

	return identity, nil
}
