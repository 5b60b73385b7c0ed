// Package token signs and verifies password setup tokens for staff invites.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/application"
)

const (
	issuer   = "mybeachtrivia"
	audience = "invite"
)

// inviteClaims is the JWT body of a setup token.
type inviteClaims struct {
	EmployeeID string `json:"emp"`
	jwt.RegisteredClaims
}

// InviteCodec issues and parses HS256 signed invite tokens.
type InviteCodec struct {
	secret []byte
	now    func() time.Time
}

// NewInviteCodec returns a codec signing with secret. now defaults to time.Now.
func NewInviteCodec(secret string, now func() time.Time) (*InviteCodec, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("invite signing secret must be at least 16 bytes")
	}
	if now == nil {
		now = time.Now
	}
	return &InviteCodec{secret: []byte(secret), now: now}, nil
}

// Issue signs claims into a compact token.
func (c *InviteCodec) Issue(claims application.InviteClaims) (string, error) {
	if claims.InviteID == "" || claims.EmployeeID == "" {
		return "", fmt.Errorf("invite token needs invite and employee ids")
	}
	issuedAt := c.now()
	body := inviteClaims{
		EmployeeID: claims.EmployeeID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        claims.InviteID,
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, body).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign invite token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token. Expired tokens return application.ErrInviteExpired;
// any other defect returns application.ErrInvalidCredentials.
func (c *InviteCodec) Parse(raw string) (application.InviteClaims, error) {
	var body inviteClaims
	_, err := jwt.ParseWithClaims(raw, &body,
		func(t *jwt.Token) (any, error) {
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return application.InviteClaims{}, application.ErrInviteExpired
		}
		return application.InviteClaims{}, fmt.Errorf("%w: %v", application.ErrInvalidCredentials, err)
	}
	if body.ID == "" || body.EmployeeID == "" {
		return application.InviteClaims{}, application.ErrInvalidCredentials
	}
	return application.InviteClaims{
		InviteID:   body.ID,
		EmployeeID: body.EmployeeID,
		ExpiresAt:  body.ExpiresAt.Time,
	}, nil
}
