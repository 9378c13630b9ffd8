package domain

// Role names stored on the user row
const (
	RoleCustomer = "customer" // Buys and sells shares, funds the wallet
	RoleBroker   = "broker"   // Mediates trade orders assigned to them
	RoleAdmin    = "admin"    // Back-office operator
)

// User Model
type User struct {
	ID       uint   `gorm:"primaryKey" json:"id"`                                    // Primary key
	Username string `gorm:"unique;not null;size:64" json:"username"`                 // Unique username
	Email    string `gorm:"uniqueIndex;size:191" json:"email"`                       // Email used by the payment processor
	Password string `gorm:"not null" json:"-"`                                       // Hashed password
	Role     string `gorm:"default:customer;size:16" json:"role"`                    // Role: customer, broker or admin
	Wallet   Wallet `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"-"` // One-to-one relationship with Wallet
}

// ValidRole reports whether r is one of the known roles
func ValidRole(r string) bool {
	return r == RoleCustomer || r == RoleBroker || r == RoleAdmin
}

// Actor is the authenticated caller of an operation
type Actor struct {
	UserID uint   // Authenticated user ID
	Role   string // Role loaded from the user row
}

// IsAdmin reports whether the actor holds the admin role
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
