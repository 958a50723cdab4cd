package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Skotchmaster/academy/internal/principal"
)

var (
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenInvalidSignature = errors.New("token signature invalid")
	ErrTokenExpired          = errors.New("token expired")
)

// AccessClaims serializes to {sub, kind, roles, iat, exp}.
type AccessClaims struct {
	Kind  principal.Kind `json:"kind"`
	Roles []string       `json:"roles"`
	jwt.RegisteredClaims
}

type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Codec)

func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func NewCodec(secret []byte, ttl time.Duration, opts ...Option) *Codec {
	c := &Codec{secret: secret, ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Codec) TTL() time.Duration { return c.ttl }

func (c *Codec) Issue(p principal.Principal) (string, time.Time, error) {
	if p.Username == "" || !p.Kind.Valid() {
		return "", time.Time{}, fmt.Errorf("issue access token: incomplete principal")
	}

	now := c.now().UTC()
	exp := now.Add(c.ttl)
	roles := make([]string, len(p.Roles))
	copy(roles, p.Roles)

	claims := AccessClaims{
		Kind:  p.Kind,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return token, claims.ExpiresAt.Time, nil
}

// Validate checks signature and expiry only; it never consults a store.
func (c *Codec) Validate(token string) (*AccessClaims, error) {
	var claims AccessClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrTokenInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	if claims.Subject == "" || !claims.Kind.Valid() {
		return nil, ErrTokenMalformed
	}
	if claims.Roles == nil {
		claims.Roles = []string{}
	}
	return &claims, nil
}
