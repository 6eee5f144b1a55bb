// ABOUTME: JWT issuance and verification for session identities
// ABOUTME: Uses HS256 signing with the configured secret; the identity is the "sub" claim

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors. ErrInvalidToken's text doubles as the client-facing message.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = fmt.Errorf("%w: expired", ErrInvalidToken)
	ErrMissingClaim = fmt.Errorf("%w: missing required claim", ErrInvalidToken)
)

// TokenVerifier checks a token and returns the identity it was issued for.
type TokenVerifier interface {
	Verify(tokenString string) (identity string, err error)
}

// TokenIssuer issues tokens that a matching TokenVerifier accepts.
type TokenIssuer interface {
	Generate(identity string, expiresIn time.Duration) (string, error)
}

// JWTVerifier issues and verifies HS256 signed JWTs.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a JWT verifier with the given secret.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify validates the token and extracts the identity from the "sub" claim.
func (v *JWTVerifier) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return sub, nil
}

// Generate signs a token for identity. An expiresIn of zero issues a token
// that never expires.
func (v *JWTVerifier) Generate(identity string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": identity,
		"iat": now.Unix(),
	}
	if expiresIn != 0 {
		claims["exp"] = now.Add(expiresIn).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
