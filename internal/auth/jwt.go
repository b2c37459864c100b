// Package auth issues and validates session tokens and hashes passwords.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/orozarna/internal/model"
)

// Issuer is the iss claim on every token.
const Issuer = "orozarna"

// TokenExpiry is the default token lifetime.
const TokenExpiry = 12 * time.Hour

// ErrInvalidToken is returned for any token that does not validate.
var ErrInvalidToken = errors.New("invalid token")

// Claims represents the JWT claims. Role and VerifiedAdult are a snapshot from
// login; request handlers reload the user before acting on them.
type Claims struct {
	UserID        int64      `json:"user_id"`
	Username      string     `json:"username"`
	Role          model.Role `json:"role"`
	VerifiedAdult bool       `json:"verified_adult"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed token for u with a unique JTI.
func GenerateToken(secret string, u *model.User, now time.Time) (string, error) {
	claims := Claims{
		UserID:        u.ID,
		Username:      u.Username,
		Role:          u.Role,
		VerifiedAdult: u.VerifiedAdult,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    Issuer,
			Subject:   fmt.Sprintf("%d", u.ID),
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

// ValidateToken parses and validates a token, returning its claims.
func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(Issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashPassword hashes a password with bcrypt at the default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
