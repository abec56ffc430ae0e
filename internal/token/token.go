// Package token decodes the compact bearer credential issued at login.
//
// The decode is structural only: the payload segment is parsed and checked
// for the fields the client needs, but the signature is never verified.
// Signature verification is the API's job; the client only needs enough to
// know who it is acting as and when the credential runs out.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultExpiryWarning is how far ahead of expiry the session is treated as
// expiring soon.
const DefaultExpiryWarning = 5 * time.Minute

var (
	// ErrMalformedToken indicates the credential is not a three-segment
	// compact token or its payload cannot be decoded.
	ErrMalformedToken = errors.New("token: malformed token")

	// ErrInvalidPayload indicates the payload decoded but lacks a subject
	// id or role.
	ErrInvalidPayload = errors.New("token: invalid payload")
)

type claims struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Decoded is the slice of the credential the client acts on.
type Decoded struct {
	Subject   string
	Role      string
	ExpiresAt *time.Time
}

// Decode parses the credential without verifying its signature. The role is
// normalized to lowercase. A token whose payload lacks an id or role is
// never valid, regardless of expiry.
func Decode(tok string) (Decoded, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return Decoded{}, ErrMalformedToken
	}

	var c claims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &c); err != nil {
		return Decoded{}, ErrMalformedToken
	}
	if strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.Role) == "" {
		return Decoded{}, ErrInvalidPayload
	}

	d := Decoded{
		Subject: c.ID,
		Role:    strings.ToLower(strings.TrimSpace(c.Role)),
	}
	if c.ExpiresAt != nil {
		t := c.ExpiresAt.Time
		d.ExpiresAt = &t
	}
	return d, nil
}

// Expired reports whether the credential has already run out. A credential
// without an expiry never expires client-side.
func (d Decoded) Expired(now time.Time) bool {
	if d.ExpiresAt == nil {
		return false
	}
	return !now.Before(*d.ExpiresAt)
}

// ExpiringSoon reports whether the credential runs out within threshold.
// A credential without an expiry is treated as not expiring, never as an
// error. A non-positive threshold falls back to DefaultExpiryWarning.
func (d Decoded) ExpiringSoon(now time.Time, threshold time.Duration) bool {
	if d.ExpiresAt == nil {
		return false
	}
	if threshold <= 0 {
		threshold = DefaultExpiryWarning
	}
	return d.ExpiresAt.Sub(now) < threshold
}
