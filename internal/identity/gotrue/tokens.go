package gotrue

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when an access token fails verification.
var ErrInvalidToken = errors.New("gotrue: invalid access token")

type accessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Phone string `json:"phone"`
	Role  string `json:"role"`
}

// tokenValidator verifies GoTrue access tokens signed with the project's HS256 secret.
// A validator without a secret accepts every token.
type tokenValidator struct {
	secret []byte
}

func newTokenValidator(secret string) *tokenValidator {
	if secret == "" {
		return &tokenValidator{}
	}
	return &tokenValidator{secret: []byte(secret)}
}

// validate checks signature and expiry, and that the subject is userID.
func (v *tokenValidator) validate(tokenString, userID string) error {
	if len(v.secret) == 0 {
		return nil
	}
	token, err := jwt.ParseWithClaims(tokenString, &accessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
			return v.secret, nil
		}
		return nil, ErrInvalidToken
	}, jwt.WithExpirationRequired())
	if err != nil {
		return ErrInvalidToken
	}
	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return ErrInvalidToken
	}
	if claims.Subject != userID {
		return ErrInvalidToken
	}
	return nil
}
