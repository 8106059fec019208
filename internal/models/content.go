package models

import "github.com/google/uuid"

type ContentType string

const (
	ContentTypeTale    ContentType = "tale"
	ContentTypeProverb ContentType = "proverb"
	ContentTypeRiddle  ContentType = "riddle"
	ContentTypeCraft   ContentType = "craft"
)

func IsValidContentType(t ContentType) bool {
	switch t {
	case ContentTypeTale, ContentTypeProverb, ContentTypeRiddle, ContentTypeCraft:
		return true
	default:
		return false
	}
}

type ContentStatus string

const (
	ContentDraft     ContentStatus = "draft"
	ContentPublished ContentStatus = "published"
)

// Content with a nil FamilyID belongs to the public catalog only.
type Content struct {
	BaseModel
	FamilyID *uuid.UUID    `json:"familyID,omitempty" gorm:"type:uuid;index"`
	AuthorID uuid.UUID     `json:"authorID" gorm:"type:uuid;not null;index"`
	Title    string        `json:"title" gorm:"type:varchar(255);not null"`
	Body     string        `json:"body" gorm:"type:text;not null"`
	Category *string       `json:"category,omitempty" gorm:"type:varchar(100)"`
	Type     ContentType   `json:"type" gorm:"type:varchar(20);not null;index"`
	Status   ContentStatus `json:"status" gorm:"type:varchar(20);not null;default:'draft';index"`
	Family   *Family       `json:"family,omitempty" gorm:"foreignKey:FamilyID"`
	Author   User          `json:"author,omitempty" gorm:"foreignKey:AuthorID"`
}

func (Content) TableName() string {
	return "contents"
}
