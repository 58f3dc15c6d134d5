package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"type:varchar(128);not null" json:"-"`
	FullName     string    `gorm:"type:varchar(255)" json:"full_name,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// ValidatePassword applies the minimum password policy before hashing.
func ValidatePassword(raw string) error {
	if len(raw) < 8 {
		return &WeakPasswordError{Reason: "must be at least 8 characters"}
	}
	var hasLetter, hasDigit bool
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			hasLetter = true
		}
	}
	if !hasLetter || !hasDigit {
		return &WeakPasswordError{Reason: "must contain letters and digits"}
	}
	return nil
}

// HashPassword validates the policy and returns a bcrypt hash of the
// password. The plaintext is never stored.
func HashPassword(raw string) (string, error) {
	if err := ValidatePassword(raw); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether the password matches the stored hash.
func (u User) CheckPassword(raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(raw)) == nil
}

func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ErrInvalidArgument
	}
	if !strings.Contains(email[at+1:], ".") {
		return ErrInvalidArgument
	}
	return nil
}

type OrganizationRole string

const (
	OrgRoleOwner  OrganizationRole = "owner"
	OrgRoleAdmin  OrganizationRole = "admin"
	OrgRoleMember OrganizationRole = "member"
)

type Organization struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name string    `gorm:"type:varchar(255);not null" json:"name"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Organization) TableName() string { return "organizations" }

type OrganizationMember struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_org_member,priority:1" json:"organization_id"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_org_member,priority:2" json:"user_id"`

	Role OrganizationRole `gorm:"type:varchar(16);not null;default:'member'" json:"role"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (OrganizationMember) TableName() string { return "organization_members" }
