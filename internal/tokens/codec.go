package tokens

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const DefaultTTL = 30 * time.Minute

var (
	ErrMalformed        = errors.New("token malformed")
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
)

// Claims is the decoded, verified content of an access token.
type Claims struct {
	Subject   string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec issues and verifies HMAC signed access tokens. A Codec is
// immutable once built and safe for concurrent use.
type Codec struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	ttl    time.Duration
	now    func() time.Time
	newJTI func() string
}

type Option func(*Codec)

func WithTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCodec(secret []byte, alg string, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("tokens: signing secret is empty")
	}
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(strings.ToUpper(alg)).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("tokens: unsupported signing algorithm %q", alg)
	}

	key := make([]byte, len(secret))
	copy(key, secret)

	c := &Codec{
		secret: key,
		method: method,
		ttl:    DefaultTTL,
		now:    time.Now,
		newJTI: NewJTI,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func NewJTI() string { return uuid.NewString() }

func (c *Codec) DefaultTTL() time.Duration { return c.ttl }

func (c *Codec) Algorithm() string { return c.method.Alg() }

// Issue signs a new token for subject. A non-positive ttl falls back to the
// codec default.
func (c *Codec) Issue(subject string, ttl time.Duration) (string, Claims, error) {
	if subject == "" {
		return "", Claims{}, errors.New("tokens: subject is empty")
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	now := c.now()
	registered := jwt.RegisteredClaims{
		Subject:   subject,
		ID:        c.newJTI(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(c.method, registered).SignedString(c.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("tokens: sign: %w", err)
	}

	return signed, fromRegistered(registered), nil
}

// Decode verifies the signature and the expiry of raw.
func (c *Codec) Decode(raw string) (Claims, error) {
	claims, err := c.parse(raw)
	if err != nil {
		return Claims{}, err
	}
	if !c.now().Before(claims.ExpiresAt) {
		return Claims{}, ErrExpired
	}
	return claims, nil
}

// DecodeAllowExpired verifies the signature but accepts tokens past their
// expiry. Logout uses it to learn the jti of a token that may have lapsed.
func (c *Codec) DecodeAllowExpired(raw string) (Claims, error) {
	return c.parse(raw)
}

func (c *Codec) parse(raw string) (Claims, error) {
	if raw == "" {
		return Claims{}, ErrMalformed
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithoutClaimsValidation(),
	)

	var registered jwt.RegisteredClaims
	_, err := parser.ParseWithClaims(raw, &registered, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return Claims{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		default:
			return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	if registered.Subject == "" || registered.ID == "" || registered.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: missing sub, jti or exp", ErrMalformed)
	}

	return fromRegistered(registered), nil
}

func fromRegistered(r jwt.RegisteredClaims) Claims {
	out := Claims{
		Subject: r.Subject,
		JTI:     r.ID,
	}
	if r.IssuedAt != nil {
		out.IssuedAt = r.IssuedAt.Time
	}
	if r.ExpiresAt != nil {
		out.ExpiresAt = r.ExpiresAt.Time
	}
	return out
}
