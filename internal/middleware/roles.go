package middleware

import (
	"brokerage_system/internal/domain" // Importing domain models
	"net/http"                         // HTTP status codes

	"github.com/gin-gonic/gin" // Gin web framework
	"gorm.io/gorm"             // GORM ORM library
)

// ActorKey is the context key holding the authenticated domain.Actor
const ActorKey = "actor"

// LoadActorMiddleware loads the caller's role from the database on each request,
// so a role change takes effect without a new token
func LoadActorMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get(UserIDKey) // Subject set by JWTAuthMiddleware
		// Check if userID exists in context
		if !exists {
			// If not, abort with unauthorized status
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var user domain.User // Fetch user from database
		if err := db.WithContext(c.Request.Context()).Select("id", "role").First(&user, userID).Error; err != nil {
			// A token for a deleted user is no longer valid
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(ActorKey, domain.Actor{UserID: user.ID, Role: user.Role}) // Store actor in context
		c.Next()                                                        // Proceed to the next handler
	}
}

// RequireRole aborts unless the actor holds one of the given roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c) // Get actor from context
		if !ok {
			// If not, abort with unauthorized status
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		// Check if the actor holds any allowed role
		for _, r := range roles {
			if actor.Role == r {
				c.Next() // Role allowed, proceed
				return
			}
		}
		// No allowed role, abort with forbidden status
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient role"})
	}
}

// AdminOnlyMiddleware restricts a route group to admins
func AdminOnlyMiddleware() gin.HandlerFunc {
	return RequireRole(domain.RoleAdmin)
}

// ActorFrom returns the actor stored by LoadActorMiddleware
func ActorFrom(c *gin.Context) (domain.Actor, bool) {
	v, exists := c.Get(ActorKey) // Get actor from context
	if !exists {
		return domain.Actor{}, false
	}
	actor, ok := v.(domain.Actor) // Type assert actor
	return actor, ok
}
