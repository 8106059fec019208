package models

import (
	"time"

	"github.com/google/uuid"
)

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRefused  InvitationStatus = "refused"
	InvitationExpired  InvitationStatus = "expired"
)

// InvitationTTL is how long an invitation code stays redeemable.
const InvitationTTL = 48 * time.Hour

// Invitation rows are never deleted; resolved and expired invitations are
// kept as onboarding history for the family.
type Invitation struct {
	BaseModel
	FamilyID     uuid.UUID        `json:"familyID" gorm:"type:uuid;not null;index"`
	InvitedByID  uuid.UUID        `json:"invitedByID" gorm:"type:uuid;not null;index"`
	Email        string           `json:"email" gorm:"type:varchar(255);not null;index"`
	Name         *string          `json:"name,omitempty" gorm:"type:varchar(100)"`
	Phone        *string          `json:"phone,omitempty" gorm:"type:varchar(30)"`
	KinshipLabel *string          `json:"kinshipLabel,omitempty" gorm:"type:varchar(100)"`
	Code         string           `json:"code" gorm:"type:varchar(8);uniqueIndex;not null"`
	Status       InvitationStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	ExpiresAt    time.Time        `json:"expiresAt" gorm:"not null;index"`
	ResolvedAt   *time.Time       `json:"resolvedAt,omitempty"`
	Family       Family           `json:"family,omitempty" gorm:"foreignKey:FamilyID"`
	InvitedBy    User             `json:"invitedBy,omitempty" gorm:"foreignKey:InvitedByID"`
}

func (i *Invitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
