package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/heritago/backend/internal/apperr"
	"github.com/heritago/backend/internal/models"
	"gorm.io/gorm"
)

// Action classes gated by the authorization engine.
type Action string

const (
	ActionManageMembers      Action = "manage_members"
	ActionCreateInvitation   Action = "create_invitation"
	ActionCreateContent      Action = "create_content"
	ActionReadContent        Action = "read_content"
	ActionRequestPublication Action = "request_publication"
	ActionResolvePublication Action = "resolve_publication"
)

// Denial reasons. Handlers propagate these verbatim.
const (
	ReasonNotAMember       = "not a member of this family"
	ReasonInsufficientRole = "insufficient permissions"
	ReasonSuperadminOnly   = "superadmin role required"
	ReasonSelfDemotion     = "admins cannot demote themselves"
)

type AuthzService struct {
	DB *gorm.DB
}

func NewAuthzService(db *gorm.DB) *AuthzService {
	return &AuthzService{DB: db}
}

// RoleAllows is the pure family-role rule table: admin-only actions first,
// then content creation for editors, then reads for everyone in the family.
func RoleAllows(role models.FamilyRole, action Action) bool {
	switch action {
	case ActionManageMembers, ActionCreateInvitation, ActionRequestPublication:
		return role == models.FamilyRoleAdmin
	case ActionCreateContent:
		return role == models.FamilyRoleAdmin || role == models.FamilyRoleEditor
	case ActionReadContent:
		return models.IsValidFamilyRole(role)
	case ActionResolvePublication:
		// Resolution is never a family-level power.
		return false
	default:
		return false
	}
}

// SuperadminAllows covers the global-role bypass: a superadmin resolves
// publication requests platform-wide and may act on content of any family.
func SuperadminAllows(action Action) bool {
	switch action {
	case ActionResolvePublication, ActionRequestPublication, ActionReadContent:
		return true
	default:
		return false
	}
}

// Authorize decides whether actorID may perform action inside familyID.
// It returns nil when permitted and a typed denial otherwise.
func (a *AuthzService) Authorize(ctx context.Context, actorID, familyID uuid.UUID, action Action) error {
	actor, err := a.loadUser(ctx, actorID)
	if err != nil {
		return err
	}

	if actor.IsSuperadmin() && SuperadminAllows(action) {
		return nil
	}

	if action == ActionResolvePublication {
		return apperr.Unauthorized(ReasonSuperadminOnly)
	}

	membership, err := a.Membership(ctx, familyID, actorID)
	if err != nil {
		return err
	}

	if !RoleAllows(membership.Role, action) {
		return apperr.Unauthorized(ReasonInsufficientRole)
	}
	return nil
}

// CheckRoleChange applies the self-demotion guard: an admin may change any
// other member's role, but may not move their own membership away from
// admin, so a family always keeps at least one admin.
func CheckRoleChange(actorID uuid.UUID, target *models.Membership, newRole models.FamilyRole) error {
	if target.UserID == actorID && target.Role == models.FamilyRoleAdmin && newRole != models.FamilyRoleAdmin {
		return apperr.Unauthorized(ReasonSelfDemotion)
	}
	return nil
}

// Membership loads the (family, user) membership, translating a missing row
// into the standard denial reason.
func (a *AuthzService) Membership(ctx context.Context, familyID, userID uuid.UUID) (*models.Membership, error) {
	var membership models.Membership
	err := a.DB.WithContext(ctx).First(&membership, "family_id = ? AND user_id = ?", familyID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthorized(ReasonNotAMember)
		}
		return nil, apperr.Internal("failed loading membership", err)
	}
	return &membership, nil
}

func (a *AuthzService) loadUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := a.DB.WithContext(ctx).First(&user, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal("failed loading user", err)
	}
	return &user, nil
}
