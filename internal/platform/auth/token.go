package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// IssuedToken is a signed access token and its metadata.
type IssuedToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
	TokenID     string    `json:"-"`
}

// TokenIssuer signs HS256 access tokens.
type TokenIssuer struct {
	issuer string
	key    []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(issuer string, key []byte, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{issuer: issuer, key: key, ttl: ttl, now: time.Now}
}

// Issue signs a token for subject carrying the given roles.
func (i *TokenIssuer) Issue(subject, username string, roles []string) (*IssuedToken, error) {
	if len(i.key) == 0 {
		return nil, fmt.Errorf("token signing key is not configured")
	}
	now := i.now()
	exp := now.Add(i.ttl)
	jti := uuid.NewString()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    i.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Username: username,
		Roles:    roles,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &IssuedToken{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int(i.ttl.Seconds()),
		ExpiresAt:   exp,
		TokenID:     jti,
	}, nil
}

func ExpiresAtFromContext(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(ExpiresAtKey).(time.Time)
	return t, ok
}
