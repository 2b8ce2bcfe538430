// Package auth verifies identity-provider access tokens.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// Claims mirrors the access tokens issued by the identity provider. The
// platform role lives in app_metadata; the top-level role is the database
// role and is normally "authenticated".
type Claims struct {
	Email       string      `json:"email"`
	Role        string      `json:"role"`
	AppMetadata AppMetadata `json:"app_metadata"`
	jwt.RegisteredClaims
}

type AppMetadata struct {
	Role string `json:"role,omitempty"`
}

// Caller is the verified identity behind a request.
type Caller struct {
	UserID string
	Email  string
	Role   string
}

type Verifier struct {
	secret   []byte
	audience string
	parser   *jwt.Parser
}

func NewVerifier(secret, audience string) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5 * time.Second),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &Verifier{
		secret:   []byte(secret),
		audience: audience,
		parser:   jwt.NewParser(opts...),
	}
}

func (v *Verifier) Verify(tokenString string) (Caller, error) {
	if len(v.secret) == 0 || strings.TrimSpace(tokenString) == "" {
		return Caller{}, ErrInvalidToken
	}

	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Caller{}, ErrExpiredToken
		}
		return Caller{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return Caller{}, ErrInvalidToken
	}

	role := claims.AppMetadata.Role
	if role == "" {
		role = claims.Role
	}
	return Caller{
		UserID: claims.Subject,
		Email:  strings.ToLower(strings.TrimSpace(claims.Email)),
		Role:   role,
	}, nil
}

// IssueToken signs claims with HS256. The service never issues tokens
// itself; this exists for local tooling and tests.
func IssueToken(secret string, caller Caller, audience string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:       caller.Email,
		Role:        "authenticated",
		AppMetadata: AppMetadata{Role: caller.Role},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
