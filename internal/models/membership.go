package models

import "github.com/google/uuid"

type FamilyRole string

const (
	FamilyRoleAdmin  FamilyRole = "admin"
	FamilyRoleEditor FamilyRole = "editor"
	FamilyRoleReader FamilyRole = "reader"
)

func IsValidFamilyRole(role FamilyRole) bool {
	switch role {
	case FamilyRoleAdmin, FamilyRoleEditor, FamilyRoleReader:
		return true
	default:
		return false
	}
}

type Membership struct {
	BaseModel
	FamilyID     uuid.UUID  `json:"familyID" gorm:"type:uuid;not null;index;uniqueIndex:idx_family_user"`
	UserID       uuid.UUID  `json:"userID" gorm:"type:uuid;not null;index;uniqueIndex:idx_family_user"`
	Role         FamilyRole `json:"role" gorm:"type:varchar(20);not null;default:'reader'"`
	KinshipLabel *string    `json:"kinshipLabel,omitempty" gorm:"type:varchar(100)"`
	Family       Family     `json:"family,omitempty" gorm:"foreignKey:FamilyID"`
	User         User       `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
