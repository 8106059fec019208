package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PublicationStatus string

const (
	PublicationPending  PublicationStatus = "pending"
	PublicationApproved PublicationStatus = "approved"
	PublicationRejected PublicationStatus = "rejected"
)

// PublicationRequest does not use BaseModel because its lifecycle timestamps
// (requested_at, resolved_at) are domain data, not bookkeeping.
type PublicationRequest struct {
	ID          uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	ContentID   uuid.UUID         `json:"contentID" gorm:"type:uuid;not null;index"`
	RequesterID uuid.UUID         `json:"requesterID" gorm:"type:uuid;not null;index"`
	ResolverID  *uuid.UUID        `json:"resolverID,omitempty" gorm:"type:uuid;index"`
	Status      PublicationStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	Comment     *string           `json:"comment,omitempty" gorm:"type:text"`
	RequestedAt time.Time         `json:"requestedAt" gorm:"not null"`
	ResolvedAt  *time.Time        `json:"resolvedAt,omitempty"`
	Content     Content           `json:"content,omitempty" gorm:"foreignKey:ContentID"`
	Requester   User              `json:"requester,omitempty" gorm:"foreignKey:RequesterID"`
	Resolver    *User             `json:"resolver,omitempty" gorm:"foreignKey:ResolverID"`
}

func (r *PublicationRequest) BeforeCreate(_ *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.RequestedAt.IsZero() {
		r.RequestedAt = time.Now().UTC()
	}
	return nil
}

func (PublicationRequest) TableName() string {
	return "publication_requests"
}
