package middleware

import (
	"crypto/subtle"
	"strings"

	"streamwatch/pkg/errors"

	"github.com/gin-gonic/gin"
)

// BearerToken returns the token of an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// TokenMatches compares a presented token against the configured one in
// constant time.
func TokenMatches(presented, expected string) bool {
	return expected != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}

// AuthMiddleware requires the shared access token as a bearer token.
func AuthMiddleware(accessToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Error(errors.NewUnauthorizedError("authorization header required"))
			c.Abort()
			return
		}

		token, ok := BearerToken(authHeader)
		if !ok {
			c.Error(errors.NewUnauthorizedError("invalid authorization header format"))
			c.Abort()
			return
		}

		if !TokenMatches(token, accessToken) {
			c.Error(errors.NewUnauthorizedError("invalid access token"))
			c.Abort()
			return
		}

		c.Next()
	}
}
