package services

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lostboard/apiserver/types"
)

// DefaultTokenTTL is the lifetime of a session token.
const DefaultTokenTTL = 24 * time.Hour

var (
	errSigningKeyMissing = errors.New("signing key is not configured")
	errSigningMethod     = errors.New("unexpected signing method")
)

// Claims is the payload of a session token.
type Claims struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 session tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for user that expires after the configured TTL.
func (m *TokenManager) Issue(user types.User) (string, error) {
	if len(m.secret) == 0 {
		return "", internalError("failed to create token", errSigningKeyMissing)
	}

	now := m.now()
	claims := Claims{
		ID:       user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", internalError("failed to create token", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of tokenString. Bad, tampered or
// expired tokens fail with KindUnauthenticated; a verifier without a key
// fails with KindInternal.
func (m *TokenManager) Verify(tokenString string) (Claims, error) {
	if len(m.secret) == 0 {
		return Claims{}, internalError("token verification unavailable", errSigningKeyMissing)
	}

	claims := Claims{}
	token, err := jwt.ParseWithClaims(
		strings.TrimSpace(tokenString),
		&claims,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errSigningMethod
			}
			return m.secret, nil
		},
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Claims{}, &Error{Kind: KindUnauthenticated, Message: "invalid or expired token", Err: err}
	}
	if !token.Valid || claims.ID < 1 {
		return Claims{}, newError(KindUnauthenticated, "invalid or expired token")
	}
	return claims, nil
}
