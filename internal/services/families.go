package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/google/uuid"
	"github.com/heritago/backend/internal/apperr"
	"github.com/heritago/backend/internal/models"
	"github.com/heritago/backend/pkg/utils"
	"gorm.io/gorm"
)

type FamilyService struct {
	DB       *gorm.DB
	Authz    *AuthzService
	Notifier Notifier
}

func NewFamilyService(db *gorm.DB, authz *AuthzService, notifier Notifier) *FamilyService {
	return &FamilyService{DB: db, Authz: authz, Notifier: notifier}
}

// Create makes a family and its creator-admin membership atomically; a
// family never exists without at least its creator holding ADMIN.
func (s *FamilyService) Create(ctx context.Context, creatorID uuid.UUID, name string, description *string) (*models.Family, error) {
	family := &models.Family{
		Name:        name,
		Description: description,
		CreatedByID: creatorID,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(family).Error; err != nil {
			return err
		}
		membership := models.Membership{
			FamilyID: family.ID,
			UserID:   creatorID,
			Role:     models.FamilyRoleAdmin,
		}
		return tx.Create(&membership).Error
	})
	if err != nil {
		return nil, apperr.Internal("failed creating family", err)
	}
	return family, nil
}

type AddMemberInput struct {
	Email        string
	Role         models.FamilyRole
	KinshipLabel *string
}

// AddMember lets a family admin attach a user by email without the
// invitation round-trip. A missing account is provisioned on the spot with a
// random temporary password and a forced reset on first login.
func (s *FamilyService) AddMember(ctx context.Context, familyID, adminID uuid.UUID, in AddMemberInput) (*models.Membership, error) {
	if err := s.Authz.Authorize(ctx, adminID, familyID, ActionManageMembers); err != nil {
		return nil, err
	}

	if !models.IsValidFamilyRole(in.Role) {
		return nil, apperr.Conflict("invalid role")
	}

	var family models.Family
	if err := s.DB.WithContext(ctx).First(&family, "id = ?", familyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("family not found")
		}
		return nil, apperr.Internal("failed loading family", err)
	}

	email := normalizeEmail(in.Email)
	var user models.User
	err := s.DB.WithContext(ctx).First(&user, "email = ?", email).Error
	provisioned := false
	var tempPassword string
	if errors.Is(err, gorm.ErrRecordNotFound) {
		tempPassword, err = generateTempPassword()
		if err != nil {
			return nil, apperr.Internal("failed generating temporary password", err)
		}
		hash, err := utils.HashPassword(tempPassword)
		if err != nil {
			return nil, apperr.Internal("failed hashing temporary password", err)
		}
		user = models.User{
			Email:                 email,
			PasswordHash:          hash,
			DisplayName:           email,
			Role:                  models.UserRoleMember,
			Active:                true,
			PasswordResetRequired: true,
		}
		if err := s.DB.WithContext(ctx).Create(&user).Error; err != nil {
			if IsUniqueViolation(err) {
				return nil, apperr.Conflict("a user with this email already exists")
			}
			return nil, apperr.Internal("failed provisioning user", err)
		}
		provisioned = true
	} else if err != nil {
		return nil, apperr.Internal("failed loading user", err)
	}

	membership := &models.Membership{
		FamilyID:     familyID,
		UserID:       user.ID,
		Role:         in.Role,
		KinshipLabel: in.KinshipLabel,
	}
	if err := s.DB.WithContext(ctx).Create(membership).Error; err != nil {
		if IsUniqueViolation(err) {
			return nil, apperr.Conflict("user is already a member of this family")
		}
		return nil, apperr.Internal("failed creating membership", err)
	}

	if provisioned {
		s.Notifier.Notify(Notification{
			RecipientEmail: email,
			Template:       TemplateMemberProvisioned,
			Payload: map[string]interface{}{
				"familyName":        family.Name,
				"temporaryPassword": tempPassword,
			},
		})
	}

	membership.User = user
	return membership, nil
}

// ChangeRole overwrites a member's family role. The self-demotion guard
// keeps an admin from leaving the family without one.
func (s *FamilyService) ChangeRole(ctx context.Context, familyID, adminID, membershipID uuid.UUID, newRole models.FamilyRole) (*models.Membership, error) {
	if err := s.Authz.Authorize(ctx, adminID, familyID, ActionManageMembers); err != nil {
		return nil, err
	}

	if !models.IsValidFamilyRole(newRole) {
		return nil, apperr.Conflict("invalid role")
	}

	var target models.Membership
	err := s.DB.WithContext(ctx).First(&target, "id = ? AND family_id = ?", membershipID, familyID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("membership not found")
		}
		return nil, apperr.Internal("failed loading membership", err)
	}

	if err := CheckRoleChange(adminID, &target, newRole); err != nil {
		return nil, err
	}

	err = s.DB.WithContext(ctx).Model(&models.Membership{}).
		Where("id = ?", target.ID).
		Update("role", newRole).Error
	if err != nil {
		return nil, apperr.Internal("failed updating role", err)
	}

	target.Role = newRole
	return &target, nil
}

func generateTempPassword() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
