package auth

import (
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

type AccessClaims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

func (c *AccessClaims) UserID() (int64, error) { return strconv.ParseInt(c.Subject, 10, 64) }

// RefreshClaims carries only the owner and the jti; everything else lives in the ledger.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

func (c *RefreshClaims) UserID() (int64, error) { return strconv.ParseInt(c.Subject, 10, 64) }
