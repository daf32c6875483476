package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/verigate/verigate/internal/identity"
)

// JWTAuthenticator satisfies guard.Authenticator against bearer tokens
// issued by the login route. A request authenticated under a guard named
// in a route's exception list skips verification on that route.
type JWTAuthenticator struct {
	tokens    *identity.TokenIssuer
	guardName string
}

// NewJWTAuthenticator builds an authenticator bound to one guard name.
func NewJWTAuthenticator(tokens *identity.TokenIssuer, guardName string) *JWTAuthenticator {
	return &JWTAuthenticator{tokens: tokens, guardName: guardName}
}

func (a *JWTAuthenticator) Authenticated(c *gin.Context) bool {
	const prefix = "Bearer "
	h := c.GetHeader("Authorization")
	if !strings.HasPrefix(h, prefix) {
		return false
	}
	claims, err := a.tokens.Verify(strings.TrimPrefix(h, prefix))
	return err == nil && claims.Guard == a.guardName
}
