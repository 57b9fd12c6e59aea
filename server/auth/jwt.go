// Package auth validates the identity tokens minted by the account system.
// This service trusts the token contents; it never looks up credentials
// itself.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/refound-dev/refound/store"
)

const issuer = "refound"

// CallerIdentity is the authenticated caller extracted from a token.
type CallerIdentity struct {
	UserID           string
	OrganizationType store.OrganizationType
	CollegeID        *string
	SocietyID        *string
}

// ScopeID returns the organization identifier the caller belongs to.
func (c *CallerIdentity) ScopeID() string {
	if c.OrganizationType == store.OrganizationCollege && c.CollegeID != nil {
		return *c.CollegeID
	}
	if c.OrganizationType == store.OrganizationSociety && c.SocietyID != nil {
		return *c.SocietyID
	}
	return ""
}

type claims struct {
	UserID           string `json:"userId"`
	OrganizationType string `json:"organizationType"`
	CollegeID        string `json:"collegeId,omitempty"`
	SocietyID        string `json:"societyId,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken signs an identity token. Used by tests and the dev-mode
// token endpoint.
func GenerateToken(secret string, identity *CallerIdentity, ttl time.Duration) (string, error) {
	now := time.Now()
	c := &claims{
		UserID:           identity.UserID,
		OrganizationType: string(identity.OrganizationType),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if identity.CollegeID != nil {
		c.CollegeID = *identity.CollegeID
	}
	if identity.SocietyID != nil {
		c.SocietyID = *identity.SocietyID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return signed, nil
}

// ParseToken validates a token and extracts the caller identity.
func ParseToken(secret, tokenString string) (*CallerIdentity, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "invalid token")
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if c.UserID == "" {
		return nil, errors.New("token missing user id")
	}

	identity := &CallerIdentity{
		UserID:           c.UserID,
		OrganizationType: store.OrganizationType(c.OrganizationType),
	}
	switch identity.OrganizationType {
	case store.OrganizationCollege:
		if c.CollegeID == "" {
			return nil, errors.New("token missing college id")
		}
		identity.CollegeID = &c.CollegeID
	case store.OrganizationSociety:
		if c.SocietyID == "" {
			return nil, errors.New("token missing society id")
		}
		identity.SocietyID = &c.SocietyID
	default:
		return nil, errors.Errorf("unknown organization type %q", c.OrganizationType)
	}
	return identity, nil
}
