package middleware

import (
	"brokerage_system/internal/utils" // JWT utility functions
	"net/http"                        // HTTP status codes
	"strings"                         // String manipulation

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// UserIDKey is the context key holding the token subject. LoadActorMiddleware
// turns it into a domain.Actor with the user's current role.
const UserIDKey = "userID"

// bearerToken extracts the token from an "Authorization: Bearer" header
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

// JWTAuthMiddleware authenticates the caller. It only establishes who the
// subject is; the role is never taken from the token.
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		claims, err := utils.ParseJWT(tokenStr, secret)
		if err != nil || claims.UserID == 0 {
			// Expired, forged or subject-less tokens all look the same to the client
			logrus.WithFields(logrus.Fields{
				"path":  c.FullPath(),   // Route template
				"error": errString(err), // Parse failure, if any
			}).Debug("Rejected bearer token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Set(UserIDKey, claims.UserID) // Subject for LoadActorMiddleware
		c.Next()
	}
}

func errString(err error) string {
	if err == nil {
		return "token has no subject"
	}
	return err.Error()
}
