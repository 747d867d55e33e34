package users

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// RoleType is the enumerated role a local profile carries
type RoleType string

const (
	RoleUser  RoleType = "user"  // Default role for every provisioned identity
	RoleAdmin RoleType = "admin" // Back-office access (admin front end)
)

// DefaultRole is assigned when a profile is created from an external identity
const DefaultRole = RoleUser

var (
	ErrNotFound     = errors.New("profile not found")
	ErrDuplicateKey = errors.New("profile already exists for external subject")
)

// User is the local profile an external (IdP) identity maps to. The wider
// profile schema belongs to the user service; only the fields the session
// broker needs live here.
type User struct {
	ID                string    `json:"id"`                  // Local profile id
	ExternalSubjectID string    `json:"externalSubjectId"`   // IdP subject (sub claim), unique
	Email             string    `json:"email,omitempty"`     // Email at provisioning time
	Role              RoleType  `json:"role"`                // Enumerated role, defaults to user
	CreatedAt         time.Time `json:"createdAt,omitempty"` // When the profile was provisioned
}

// NewUser builds a profile for a freshly verified external identity.
func NewUser(id, externalSubjectID, email string, now time.Time) *User {
	return &User{
		ID:                id,
		ExternalSubjectID: externalSubjectID,
		Email:             strings.ToLower(strings.TrimSpace(email)),
		Role:              DefaultRole,
		CreatedAt:         now.UTC(),
	}
}

// Validate checks the fields every store relies on
func (u *User) Validate() error {
	if u == nil {
		return fmt.Errorf("user cannot be nil")
	}
	if u.ID == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if u.ExternalSubjectID == "" {
		return fmt.Errorf("external subject id cannot be empty")
	}
	if !u.Role.Valid() {
		return fmt.Errorf("unknown role %q", u.Role)
	}
	return nil
}

// HasRole reports whether the user's role is one of roles
func (u *User) HasRole(roles ...RoleType) bool {
	if u == nil {
		return false
	}
	return slices.Contains(roles, u.Role)
}

func (r RoleType) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ParseRole maps a stored role string back to a RoleType
func ParseRole(s string) (RoleType, error) {
	r := RoleType(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
