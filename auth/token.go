package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// DefaultTokenTTL is how long an issued token stays valid.
const DefaultTokenTTL = 24 * time.Hour

// Claims is the identity carried by a session token.
type Claims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`

	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 session tokens. Tokens are self-contained;
// there is no server-side revocation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	s := &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	s.parser = s.newParser()
	return s
}

// WithClock overrides the time source used for iat/exp and for expiry checks.
func (s *TokenService) WithClock(clock func() time.Time) *TokenService {
	if clock != nil {
		s.now = clock
		s.parser = s.newParser()
	}
	return s
}

func (s *TokenService) newParser() *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
		jwt.WithExpirationRequired(),
	)
}

// Issue signs a token for the given identity.
func (s *TokenService) Issue(userID, email, name string) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("auth: token secret not configured")
	}
	now := s.now().UTC()

	c := Claims{
		UserID: userID,
		Email:  email,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

// Verify checks signature, algorithm and expiry and returns the embedded claims.
func (s *TokenService) Verify(tokenString string) (Claims, error) {
	var c Claims
	tok, err := s.parser.ParseWithClaims(tokenString, &c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if tok == nil || !tok.Valid || c.UserID == "" {
		return Claims{}, ErrTokenInvalid
	}

	return c, nil
}
