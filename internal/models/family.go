package models

import "github.com/google/uuid"

type Family struct {
	BaseModel
	Name        string       `json:"name" gorm:"type:varchar(255);not null"`
	Description *string      `json:"description,omitempty" gorm:"type:text"`
	CreatedByID uuid.UUID    `json:"createdByID" gorm:"type:uuid;not null;index"`
	CreatedBy   User         `json:"createdBy,omitempty" gorm:"foreignKey:CreatedByID"`
	Memberships []Membership `json:"memberships,omitempty" gorm:"foreignKey:FamilyID"`
}

func (Family) TableName() string {
	return "families"
}
