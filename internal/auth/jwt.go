// Package auth issues and checks the tokens guarding the API once a
// passphrase has been set.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Subject is the only principal; the tracker has a single owner.
const Subject = "owner"

// TokenExpiry is the default token lifetime.
const TokenExpiry = 7 * 24 * time.Hour

// ErrBadPassphrase is returned when a passphrase does not match its hash.
var ErrBadPassphrase = errors.New("invalid passphrase")

// Claims represents the JWT claims.
type Claims struct {
	jwt.RegisteredClaims
}

// GenerateToken creates a new JWT with a unique JTI.
func GenerateToken(secret string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   Subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject != Subject {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

// HashPassphrase returns the bcrypt hash of passphrase.
func HashPassphrase(passphrase string) (string, error) {
	if passphrase == "" {
		return "", fmt.Errorf("hashing passphrase: empty passphrase")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(passphrase), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing passphrase: %w", err)
	}
	return string(hash), nil
}

// CheckPassphrase compares passphrase against a stored hash.
func CheckPassphrase(hash, passphrase string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(passphrase)); err != nil {
		return ErrBadPassphrase
	}
	return nil
}
