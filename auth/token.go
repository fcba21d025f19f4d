// Package auth issues and resolves the session tokens that identify a
// participant on a game connection.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer               = "connectn"
	participantIDRule    = "required,max=64,printascii,excludesall=/?#&%"
	defaultTokenLifetime = 24 * time.Hour
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrInvalidIdentity = errors.New("invalid participant id")
)

var validate = validator.New()

// Claims is the payload of a session token
type Claims struct {
	ParticipantID string `json:"pid"`
	jwt.RegisteredClaims
}

// Issuer signs HS256 session tokens and keeps a denylist of destroyed ones
// until they expire
type Issuer struct {
	secret   []byte
	lifetime time.Duration

	mu      sync.Mutex
	revoked map[string]time.Time
}

// NewIssuer creates a token issuer. A zero lifetime means 24 hours.
func NewIssuer(secret string, lifetime time.Duration) (*Issuer, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("token secret must be at least 16 bytes, got %d", len(secret))
	}
	if lifetime <= 0 {
		lifetime = defaultTokenLifetime
	}
	return &Issuer{
		secret:   []byte(secret),
		lifetime: lifetime,
		revoked:  make(map[string]time.Time),
	}, nil
}

// CreateSessionToken mints a token for the participant
func (i *Issuer) CreateSessionToken(ctx context.Context, participantID string) (string, error) {
	if err := ValidateParticipantID(participantID); err != nil {
		return "", err
	}

	now := time.Now()
	claims := &Claims{
		ParticipantID: participantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   participantID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.lifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// ResolveIdentity returns the participant a live token was issued to
func (i *Issuer) ResolveIdentity(ctx context.Context, token string) (string, error) {
	claims, err := i.parse(token)
	if err != nil {
		return "", err
	}

	i.mu.Lock()
	_, revoked := i.revoked[claims.ID]
	i.mu.Unlock()
	if revoked {
		return "", fmt.Errorf("%w: token revoked", ErrInvalidToken)
	}

	return claims.ParticipantID, nil
}

// DestroySessionToken revokes a token. Destroying an expired or already
// destroyed token is not an error.
func (i *Issuer) DestroySessionToken(ctx context.Context, token string) error {
	claims, err := i.parse(token)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil
	}
	if err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.revoked[claims.ID] = claims.ExpiresAt.Time
	i.pruneLocked(time.Now())
	return nil
}

// RevokedCount returns the number of tracked revocations
func (i *Issuer) RevokedCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.revoked)
}

func (i *Issuer) parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.ParticipantID == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// pruneLocked drops revocations whose tokens have expired anyway
func (i *Issuer) pruneLocked(now time.Time) {
	for id, expires := range i.revoked {
		if expires.Before(now) {
			delete(i.revoked, id)
		}
	}
}

// ValidateParticipantID checks an id is usable on the wire and in URLs
func ValidateParticipantID(participantID string) error {
	if err := validate.Var(participantID, participantIDRule); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidIdentity, participantID)
	}
	return nil
}
