// Package auth issues and validates the HS256 bearer tokens the API accepts.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/clock"
	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/models"
)

// DefaultTTL is the lifetime of tokens issued without an explicit ttl.
const DefaultTTL = 24 * time.Hour

var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated caller.
type Identity struct {
	UserID uuid.UUID
	Role   string
}

func (id Identity) IsAdmin() bool { return id.Role == models.RoleAdmin }

type Service interface {
	Issue(userID uuid.UUID, role string, ttl time.Duration) (string, error)
	Validate(token string) (Identity, error)
}

type service struct {
	secret []byte
	clock  clock.Clock
}

func NewService(secret string, clk clock.Clock) Service {
	if clk == nil {
		clk = clock.Real{}
	}
	return &service{secret: []byte(secret), clock: clk}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func (s *service) Issue(userID uuid.UUID, role string, ttl time.Duration) (string, error) {
	if role != models.RoleUser && role != models.RoleAdmin {
		return "", errors.New("invalid role")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := s.clock.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) Validate(token string) (Identity, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.clock.Now), jwt.WithExpirationRequired())
	if err != nil {
		return Identity{}, errors.Join(ErrInvalidToken, err)
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return Identity{}, ErrInvalidToken
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return Identity{}, errors.Join(ErrInvalidToken, err)
	}
	if c.Role != models.RoleUser && c.Role != models.RoleAdmin {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: id, Role: c.Role}, nil
}
