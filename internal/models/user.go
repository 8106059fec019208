package models

type UserRole string

const (
	UserRoleSuperadmin UserRole = "superadmin"
	UserRoleMember     UserRole = "member"
)

type User struct {
	BaseModel
	Email                 string       `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash          string       `json:"-" gorm:"type:text;not null"`
	DisplayName           string       `json:"displayName" gorm:"type:varchar(100);not null"`
	Role                  UserRole     `json:"role" gorm:"type:varchar(20);not null;default:'member'"`
	Active                bool         `json:"active" gorm:"not null;default:true"`
	PasswordResetRequired bool         `json:"passwordResetRequired" gorm:"not null;default:false"`
	Memberships           []Membership `json:"-" gorm:"foreignKey:UserID"`
	Contents              []Content    `json:"-" gorm:"foreignKey:AuthorID"`
}

func (u *User) IsSuperadmin() bool {
	return u.Role == UserRoleSuperadmin
}
