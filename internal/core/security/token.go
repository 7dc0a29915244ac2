package security

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/inkwell/account-service/internal/core/domain"
)

// DefaultTokenTTL is used when neither the issuer nor the call supplies a TTL.
const DefaultTokenTTL = 30 * 24 * time.Hour

// Claims is the session token payload. The subject carries the numeric
// account id rendered as a decimal string.
type Claims struct {
	Email       string   `json:"email,omitempty"`
	Username    string   `json:"username,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// SubjectID parses the subject back into an account id. A missing or
// non-numeric subject is reported as domain.ErrInvalidToken.
func (c *Claims) SubjectID() (int64, error) {
	if c == nil || c.Subject == "" {
		return 0, domain.ErrInvalidToken
	}
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidToken
	}
	return id, nil
}

// Subject describes the identity a token is issued for.
type Subject struct {
	ID          int64
	Email       string
	Username    string
	Role        string
	Permissions []string
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock replaces the time source used for issuing and validating tokens.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	t.now = now
	return t
}

// TTL returns the default lifetime of issued tokens.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }

// Issue signs a token for sub. A non-positive ttl selects the default.
func (t *TokenIssuer) Issue(sub Subject, ttl time.Duration) (string, error) {
	if sub.ID <= 0 {
		return "", errors.New("issue token: subject id is required")
	}
	if ttl <= 0 {
		ttl = t.ttl
	}
	now := t.now()
	claims := Claims{
		Email:       sub.Email,
		Username:    sub.Username,
		Role:        sub.Role,
		Permissions: sub.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(sub.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify checks signature, algorithm and expiry. Every failure collapses to
// domain.ErrInvalidToken.
func (t *TokenIssuer) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, domain.ErrInvalidToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}
