package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/core/domain"
)

var (
	// ErrTicketInvalid covers every structural or signature failure. Callers
	// get no more detail than this, deliberately.
	ErrTicketInvalid = errors.New("ticket: invalid")
	// ErrTicketExpired indicates the ticket is past its expiry.
	ErrTicketExpired = errors.New("ticket: expired")
	// ErrSigningKeyMissing indicates the authority has no signing key configured.
	ErrSigningKeyMissing = errors.New("ticket: signing key not configured")
)

// TicketClaims augments registered claims with build and identity context.
type TicketClaims struct {
	Channel       string `json:"ch,omitempty"`
	ClientVersion string `json:"ver,omitempty"`
	Platform      string `json:"plat,omitempty"`
	AccountID     string `json:"puid,omitempty"`
	DisplayName   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TicketInput captures the per-ticket fields supplied at issuance.
type TicketInput struct {
	Channel       domain.Channel
	ClientVersion string
	Platform      string
	AccountID     string
	DisplayName   string
}

// TicketAuthority signs and verifies session tickets with a symmetric MAC.
// Verification is fully local; expiry is the only invalidation mechanism, so
// a compromised key requires rotation, not per-ticket blacklisting.
type TicketAuthority struct {
	key      []byte
	issuer   string
	audience string
	lifetime time.Duration
	now      func() time.Time
}

const defaultTicketLifetime = time.Hour

// NewTicketAuthority constructs an authority for the supplied symmetric key.
func NewTicketAuthority(signingKey, issuer, audience string, lifetime time.Duration) (*TicketAuthority, error) {
	if strings.TrimSpace(signingKey) == "" {
		return nil, ErrSigningKeyMissing
	}
	if strings.TrimSpace(issuer) == "" {
		return nil, fmt.Errorf("ticket: issuer is required")
	}
	if strings.TrimSpace(audience) == "" {
		return nil, fmt.Errorf("ticket: audience is required")
	}
	if lifetime <= 0 {
		lifetime = defaultTicketLifetime
	}

	return &TicketAuthority{
		key:      []byte(signingKey),
		issuer:   issuer,
		audience: audience,
		lifetime: lifetime,
		now:      time.Now,
	}, nil
}

// WithClock overrides the wall clock (primarily for tests).
func (a *TicketAuthority) WithClock(now func() time.Time) *TicketAuthority {
	if now != nil {
		a.now = now
	}
	return a
}

// Lifetime returns the configured ticket lifetime.
func (a *TicketAuthority) Lifetime() time.Duration {
	return a.lifetime
}

// Issue signs a ticket for the supplied input. Pure function of inputs plus
// wall-clock time; no side effects.
func (a *TicketAuthority) Issue(input TicketInput) (string, *TicketClaims, error) {
	now := a.now().UTC()

	claims := &TicketClaims{
		Channel:       string(input.Channel),
		ClientVersion: strings.TrimSpace(input.ClientVersion),
		Platform:      strings.TrimSpace(input.Platform),
		AccountID:     strings.TrimSpace(input.AccountID),
		DisplayName:   strings.TrimSpace(input.DisplayName),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Audience:  jwt.ClaimStrings{a.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.lifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.key)
	if err != nil {
		return "", nil, fmt.Errorf("ticket: sign: %w", err)
	}

	return signed, claims, nil
}

// Verify checks structure, algorithm, MAC, issuer, audience, and expiry.
// There is no clock-skew grace period.
func (a *TicketAuthority) Verify(ticket string) (*TicketClaims, error) {
	claims := &TicketClaims{}

	_, err := jwt.ParseWithClaims(ticket, claims,
		func(token *jwt.Token) (any, error) {
			return a.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithAudience(a.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTicketExpired
		}
		return nil, ErrTicketInvalid
	}

	return claims, nil
}
