package types

import "time"

// Role is the authorization level of an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	}
	return false
}

// Membership is the subscription tier of an account. It is independent
// of Role: an admin can be on the free tier and a gold member can be a
// regular user.
type Membership string

const (
	MembershipFree    Membership = "free"
	MembershipPremium Membership = "premium"
	MembershipGold    Membership = "gold"
)

// Valid reports whether the membership is one of the known tiers.
func (m Membership) Valid() bool {
	switch m {
	case MembershipFree, MembershipPremium, MembershipGold:
		return true
	}
	return false
}

// Settings holds per-user UI preferences.
type Settings struct {
	Theme    string `json:"theme"`
	Language string `json:"language"`
	Region   string `json:"region"`
}

// User represents an account in the system.
type User struct {
	// ID is the unique identifier of the user.
	ID int64 `json:"id" db:"id"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Email is the user's email address. Unique across all users.
	Email string `json:"email" db:"email"`

	// Phone is an optional contact number.
	Phone string `json:"phone,omitempty" db:"phone"`

	// Avatar is the object-storage key of the user's avatar image,
	// empty when none has been uploaded.
	Avatar string `json:"avatar,omitempty" db:"avatar"`

	// Role indicates the user's authorization level.
	Role Role `json:"role" db:"role"`

	// MembershipLevel is the user's subscription tier.
	MembershipLevel Membership `json:"membershipLevel" db:"membership_level"`

	// MembershipExpiresAt is when the paid tier lapses, nil for free
	// accounts or memberships without an expiry.
	MembershipExpiresAt *time.Time `json:"membershipExpiresAt,omitempty" db:"membership_expires_at"`

	// Settings holds the user's UI preferences.
	Settings Settings `json:"settings" db:"settings"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
