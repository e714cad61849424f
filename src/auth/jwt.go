// Package auth verifies the bearer tokens presented by chat clients.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/orchestra-mcp/chat/src/types"
)

var (
	// ErrTokenInvalid wraps every verification failure.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrMissingClaims is returned when the subject claims are absent.
	ErrMissingClaims = errors.New("token is missing subject claims")
)

// Verifier validates a bearer token and extracts its subject.
type Verifier interface {
	Verify(token string) (types.Identity, error)
}

// Claims is the JWT body issued to users.
type Claims struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewJWTVerifier creates a verifier for the given secret and issuer.
func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify parses the token, checks signature, issuer and expiry, and returns
// the subject identity.
func (v *JWTVerifier) Verify(tokenString string) (types.Identity, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return types.Identity{}, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return types.Identity{}, ErrTokenInvalid
	}
	if claims.UserID <= 0 || claims.Username == "" {
		return types.Identity{}, fmt.Errorf("%w: %w", ErrTokenInvalid, ErrMissingClaims)
	}
	return types.Identity{
		UserID:   claims.UserID,
		Username: claims.Username,
		Role:     claims.Role,
	}, nil
}

// Issue signs a token for ident valid for ttl.
func (v *JWTVerifier) Issue(ident types.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   ident.UserID,
		Username: ident.Username,
		Role:     ident.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
