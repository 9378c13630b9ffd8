package api

import (
	"brokerage_system/internal/domain" // Importing domain models
	"brokerage_system/internal/utils"  // Utility functions
	"net/http"                         // HTTP status codes
	"regexp"                           // Regular expressions
	"slices"                           // Role lookup
	"strings"                          // String manipulation

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
	"golang.org/x/crypto/bcrypt" // Password hashing
	"gorm.io/gorm"               // GORM ORM library
)

// Request and Response structs
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`    // Username must be provided
	Email    string `json:"email" binding:"required,email"` // Email used to match processor payers
	Password string `json:"password" binding:"required"`    // Password must be provided
	Role     string `json:"role"`                           // Optional role, defaults to customer
}

// Request struct for login
type LoginRequest struct {
	Username string `json:"username" binding:"required"` // Username must be provided
	Password string `json:"password" binding:"required"` // Password must be provided
}

// Response struct for authentication
type AuthResponse struct {
	Token string `json:"token"` // JWT token
	Role  string `json:"role"`  // Role of the authenticated user
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z]+$`) // Alphabetic characters only

// isValidUsername checks if the username contains only alphabetic characters
func isValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// isValidPassword checks if the password length is between 8 and 15 characters
func isValidPassword(password string) bool {
	return len(password) >= 8 && len(password) <= 15 // Return true if length is valid
}

// RegisterHandler creates a user. allowed lists the roles this route may
// assign; the public route only allows customers.
func RegisterHandler(db *gorm.DB, allowed ...string) gin.HandlerFunc {
	if len(allowed) == 0 {
		allowed = []string{domain.RoleCustomer} // Public registration
	}
	return func(c *gin.Context) {
		var req RegisterRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Validate username and password
		if !isValidUsername(req.Username) {
			// If username is invalid, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username must be alphabetic only"})
			return
		}
		// Validate password length
		if !isValidPassword(req.Password) {
			// If password is invalid, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be 8-15 characters"})
			return
		}
		role := strings.ToLower(strings.TrimSpace(req.Role)) // Requested role
		if role == "" {
			role = domain.RoleCustomer // Default role
		}
		if !domain.ValidRole(role) || !slices.Contains(allowed, role) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Role cannot be assigned here"}) // Role not allowed on this route
			return
		}
		// Hash the password and create the user
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			// If hashing fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}
		// Lowercase username and email so lookups are case-insensitive
		user := domain.User{
			Username: strings.ToLower(req.Username),                 // Unique username
			Email:    strings.ToLower(strings.TrimSpace(req.Email)), // Processor payer email
			Password: string(hash),                                  // Hashed password
			Role:     role,                                          // Assigned role
		}
		// Attempt to create the user in the database
		if err := db.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
			// If creation fails (e.g., duplicate username or email), return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username or email already exists"})
			return
		}
		// Log the registration
		logrus.WithFields(logrus.Fields{
			"user_id": user.ID,   // New user ID
			"role":    user.Role, // Assigned role
		}).Info("User registered")
		// Return success response
		c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully", "id": user.ID, "role": user.Role})
	}
}

// LoginHandler authenticates a user and returns a JWT token
func LoginHandler(db *gorm.DB, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		var user domain.User // Fetch user from database
		if err := db.WithContext(c.Request.Context()).Where("username = ?", strings.ToLower(req.Username)).First(&user).Error; err != nil {
			// If user not found, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		// Compare provided password with stored hash
		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		// Generate JWT token
		token, err := utils.GenerateJWT(user.ID, jwtSecret)
		if err != nil {
			// If token generation fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}
		// Return the token in the response
		c.JSON(http.StatusOK, AuthResponse{Token: token, Role: user.Role})
	}
}
