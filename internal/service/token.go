package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agrivia/accounts/internal/model"
)

// DefaultTokenTTL is the bearer token lifetime when none is configured.
const DefaultTokenTTL = 7 * 24 * time.Hour

const tokenIssuer = "agrivia"

// TokenClaims is the verified content of a bearer token. Status is the
// account status at issue time; it is advisory and never used for
// authorization.
type TokenClaims struct {
	AccountID int64        `json:"account_id"`
	Status    model.Status `json:"status,omitempty"`
	jwt.RegisteredClaims
}

// Email returns the subject claim.
func (c *TokenClaims) Email() string {
	return c.Subject
}

// TokenService issues and validates HS256 bearer tokens. It is stateless and
// safe for concurrent use.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService returns a service signing with secret. A zero ttl selects
// DefaultTokenTTL.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue creates a signed token for the given account.
func (s *TokenService) Issue(accountID int64, email string, status model.Status) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := TokenClaims{
		AccountID: accountID,
		Status:    status,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate verifies signature, algorithm and expiry and returns the claims.
// It does not consult the account's current status.
func (s *TokenService) Validate(tokenStr string) (*TokenClaims, error) {
	claims := &TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.AccountID <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
