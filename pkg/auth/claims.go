package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/gearledger-backend/pkg/enums"
)

// AccessTokenPayload captures the data needed to mint a token for local tooling and tests.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.Role
	Email  string
}

// AccessTokenClaims represents the bearer token issued by the hosted auth provider.
// The subject is the user's uuid.
type AccessTokenClaims struct {
	Role  enums.Role `json:"role"`
	Email string     `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *AccessTokenClaims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid subject claim: %w", err)
	}
	return id, nil
}
