package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultIssuer is the issuer expected on bearer tokens unless configured otherwise.
const DefaultIssuer = "laundrydesk"

const clockSkew = 5 * time.Second

var errMissingSecret = errors.New("auth secret is not configured")

// Claims represents JWT claims carried by bearer tokens.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier signs and verifies HS256 bearer tokens issued by the
// identity collaborator.
type TokenVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// VerifierOption configures a TokenVerifier.
type VerifierOption func(*TokenVerifier)

// WithIssuer overrides the expected issuer.
func WithIssuer(issuer string) VerifierOption {
	return func(v *TokenVerifier) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			v.issuer = issuer
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *TokenVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewTokenVerifier constructs a verifier for the shared secret.
func NewTokenVerifier(secret string, opts ...VerifierOption) (*TokenVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errMissingSecret
	}
	v := &TokenVerifier{
		secret: []byte(secret),
		issuer: DefaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// GenerateToken signs a token for the given user. Each token gets a fresh
// session id in the jti claim.
func (v *TokenVerifier) GenerateToken(userID, email string, ttl time.Duration) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("userID is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}
	now := v.now().UTC()
	claims := Claims{
		Email: strings.TrimSpace(email),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and required claims and returns the identity.
func (v *TokenVerifier) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if err := validateClaims(claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return Identity{
		ID:        strings.TrimSpace(claims.Subject),
		Email:     claims.Email,
		SessionID: claims.ID,
	}, nil
}

func validateClaims(claims *Claims) error {
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.IssuedAt == nil {
		return errors.New("issued-at missing")
	}
	if strings.TrimSpace(claims.ID) == "" {
		return errors.New("session id missing")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}
