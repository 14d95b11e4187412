// Package auth issues and checks the API's credentials: signed JWTs for
// access, email verification and password reset, and bcrypt password hashes.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. POST /auth/signup stores the user unconfirmed and mails a verification link
//  2. GET /auth/verify-email/{token} marks the account confirmed
//  3. POST /auth/login checks the password and returns an access token
//  4. Every protected request carries "Authorization: Bearer <token>"
//  5. RequireAuth resolves the token to a principal and puts it in the context
//
// WHY JWT?
// The token is self-describing: subject, purpose and expiry travel inside it
// and the HMAC signature proves the server issued them. Checking one costs a
// hash, not a database round trip. The identity cache then turns the subject
// into a full principal without touching SQLite on the hot path.
//
// JWT STRUCTURE (three base64url parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header:    {"alg":"HS256","typ":"JWT"}
//	- Payload:   {"sub":"deadpool@example.com","kind":"access","iss":"contacts-api","iat":...,"exp":...}
//	- Signature: HMAC-SHA256(header + "." + payload, secret)
//
// WHY A KIND CLAIM?
// All three token families share one secret and algorithm. Without a purpose
// marker, a password-reset link mailed to a user would also be a working
// access token. Each token carries a private "kind" claim and every parse
// names the kind it expects, so a token minted for one purpose is rejected
// when presented for another.
//
// The subject is the user's email, the identity key used for lookups.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sakif/contacts-api/internal/apperror"
)

// TokenKind tells the three token families apart.
type TokenKind string

const (
	KindAccess            TokenKind = "access"
	KindEmailVerification TokenKind = "email_verification"
	KindPasswordReset     TokenKind = "password_reset"
)

const (
	DefaultIssuer = "contacts-api"
	DefaultTTL    = time.Hour
	minSecretLen  = 16
)

var (
	errWrongKind = errors.New("auth: token kind mismatch")
	errNoSubject = errors.New("auth: token has no subject")
)

// TokenConfig is everything the codec needs. Zero TTLs and an empty
// algorithm or issuer fall back to the defaults.
type TokenConfig struct {
	Secret               string
	Algorithm            string // HS256, HS384 or HS512
	Issuer               string
	AccessTTL            time.Duration
	EmailVerificationTTL time.Duration
	PasswordResetTTL     time.Duration
}

// TokenService signs and verifies tokens. It is immutable after
// construction and safe for concurrent use.
//
// The same secret signs and verifies, so anyone holding it can mint tokens.
// Keep it out of the repository and rotate it by restarting with a new one:
// every outstanding token becomes invalid at once.
type TokenService struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	issuer string
	ttls   map[TokenKind]time.Duration
	now    func() time.Time
}

// NewTokenService validates cfg and builds a TokenService.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.Secret) < minSecretLen {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", minSecretLen)
	}

	method, err := signingMethod(cfg.Algorithm)
	if err != nil {
		return nil, err
	}

	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}

	return &TokenService{
		secret: []byte(cfg.Secret),
		method: method,
		issuer: issuer,
		ttls: map[TokenKind]time.Duration{
			KindAccess:            orDefault(cfg.AccessTTL),
			KindEmailVerification: orDefault(cfg.EmailVerificationTTL),
			KindPasswordReset:     orDefault(cfg.PasswordResetTTL),
		},
		now: time.Now,
	}, nil
}

// WithClock returns a copy of s that reads the current time from now, both
// when stamping and when checking expiry.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	cp := *s
	cp.now = now
	return &cp
}

// TTL reports the configured lifetime for kind.
func (s *TokenService) TTL(kind TokenKind) time.Duration {
	return s.ttls[kind]
}

type claims struct {
	Kind TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// Issue signs a token of the given kind for subject, valid for ttl.
func (s *TokenService) Issue(kind TokenKind, subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errNoSubject
	}

	now := s.now()
	c := claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(s.method, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing %s token: %w", kind, err)
	}
	return signed, nil
}

func (s *TokenService) GenerateAccess(subject string) (string, error) {
	return s.Issue(KindAccess, subject, s.ttls[KindAccess])
}

// GenerateAccessWithDuration issues an access token with a custom lifetime.
func (s *TokenService) GenerateAccessWithDuration(subject string, ttl time.Duration) (string, error) {
	return s.Issue(KindAccess, subject, ttl)
}

func (s *TokenService) GenerateEmailVerification(subject string) (string, error) {
	return s.Issue(KindEmailVerification, subject, s.ttls[KindEmailVerification])
}

func (s *TokenService) GeneratePasswordReset(subject string) (string, error) {
	return s.Issue(KindPasswordReset, subject, s.ttls[KindPasswordReset])
}

// Verify checks signature, algorithm, issuer, expiry and kind, and returns
// the subject.
//
// Every failure satisfies errors.Is(err, apperror.ErrInvalidToken) and
// carries the same user-facing message. The concrete cause (for example
// jwt.ErrTokenExpired) stays in the chain for logging.
func (s *TokenService) Verify(kind TokenKind, tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", invalid(err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", invalid(jwt.ErrTokenInvalidClaims)
	}
	if c.Kind != kind {
		return "", invalid(fmt.Errorf("%w: want %s, got %q", errWrongKind, kind, c.Kind))
	}
	if c.Subject == "" {
		return "", invalid(errNoSubject)
	}

	return c.Subject, nil
}

func invalid(cause error) error {
	return fmt.Errorf("auth: %w: %w", apperror.InvalidToken(), cause)
}

func signingMethod(alg string) (*jwt.SigningMethodHMAC, error) {
	switch alg {
	case "", "HS256":
		return jwt.SigningMethodHS256, nil
	case "HS384":
		return jwt.SigningMethodHS384, nil
	case "HS512":
		return jwt.SigningMethodHS512, nil
	}
	return nil, fmt.Errorf("auth: unsupported JWT algorithm %q", alg)
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTTL
	}
	return d
}
