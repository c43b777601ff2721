package domain

import "time"

// Role identifies which side of the platform an account belongs to.
type Role string

const (
	RolePatient   Role = "PATIENT"
	RoleTherapist Role = "THERAPIST"
	RoleAdmin     Role = "ADMIN"
)

// Valid reports whether the role is one of the supported values.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleTherapist, RoleAdmin:
		return true
	}
	return false
}

// UserStatus represents lifecycle states for an account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// User is the domain model for patients, therapists and admins.
// Therapists additionally carry an approval flag set by an admin;
// unapproved therapists cannot be the counterpart of a regular conversation.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Approved     bool
	AvatarURL    *string
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
