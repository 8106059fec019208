package services

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/heritago/backend/internal/apperr"
	"github.com/heritago/backend/internal/models"
	"github.com/heritago/backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 8
	// codeMaxAttempts bounds the regenerate-on-collision loop. The code
	// space is ~2.8e12, so exhausting this budget means something is wrong
	// with the store, not with luck.
	codeMaxAttempts = 10
)

type InvitationService struct {
	DB       *gorm.DB
	Authz    *AuthzService
	Notifier Notifier
	// RequireFamilyAdmin controls whether only family admins may invite.
	// When false any member of the family may.
	RequireFamilyAdmin bool
}

func NewInvitationService(db *gorm.DB, authz *AuthzService, notifier Notifier, requireFamilyAdmin bool) *InvitationService {
	return &InvitationService{
		DB:                 db,
		Authz:              authz,
		Notifier:           notifier,
		RequireFamilyAdmin: requireFamilyAdmin,
	}
}

type CreateInvitationInput struct {
	Email        string
	Name         *string
	Phone        *string
	KinshipLabel *string
}

func (s *InvitationService) Create(ctx context.Context, familyID, inviterID uuid.UUID, in CreateInvitationInput) (*models.Invitation, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return nil, apperr.Conflict("invited email is required")
	}

	var family models.Family
	if err := s.DB.WithContext(ctx).First(&family, "id = ?", familyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("family not found")
		}
		return nil, apperr.Internal("failed loading family", err)
	}

	if s.RequireFamilyAdmin {
		if err := s.Authz.Authorize(ctx, inviterID, familyID, ActionCreateInvitation); err != nil {
			return nil, err
		}
	} else {
		if _, err := s.Authz.Membership(ctx, familyID, inviterID); err != nil {
			return nil, err
		}
	}

	var inviter models.User
	if err := s.DB.WithContext(ctx).First(&inviter, "id = ?", inviterID).Error; err != nil {
		return nil, apperr.Internal("failed loading inviter", err)
	}

	now := time.Now().UTC()
	invitation := &models.Invitation{
		FamilyID:     familyID,
		InvitedByID:  inviterID,
		Email:        email,
		Name:         in.Name,
		Phone:        in.Phone,
		KinshipLabel: in.KinshipLabel,
		Status:       models.InvitationPending,
		ExpiresAt:    now.Add(models.InvitationTTL),
	}

	if err := s.insertWithFreshCode(ctx, invitation); err != nil {
		return nil, err
	}

	template := TemplateInviteNewUser
	var invited models.User
	err := s.DB.WithContext(ctx).First(&invited, "email = ?", email).Error
	if err == nil {
		template = TemplateInviteExistingUser
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("invitation_recipient_lookup_failed", err, map[string]interface{}{
			"invitation_id": invitation.ID.String(),
		})
	}

	s.Notifier.Notify(Notification{
		RecipientEmail: email,
		Template:       template,
		Payload: map[string]interface{}{
			"familyName":  family.Name,
			"inviterName": inviter.DisplayName,
			"code":        invitation.Code,
		},
	})

	return invitation, nil
}

// insertWithFreshCode generates a cryptographically random code and inserts
// the row, regenerating on a unique-index collision up to the attempt budget.
func (s *InvitationService) insertWithFreshCode(ctx context.Context, invitation *models.Invitation) error {
	for attempt := 0; attempt < codeMaxAttempts; attempt++ {
		code, err := generateInviteCode()
		if err != nil {
			return apperr.Internal("failed generating invitation code", err)
		}

		invitation.Code = code
		err = s.DB.WithContext(ctx).Create(invitation).Error
		if err == nil {
			return nil
		}
		if !IsUniqueViolation(err) {
			return apperr.Internal("failed creating invitation", err)
		}

		// Collision: reset the id so the retry inserts a fresh row.
		invitation.ID = uuid.Nil
		logger.Warn("invitation_code_collision", map[string]interface{}{
			"attempt": attempt + 1,
		})
	}
	return apperr.Internal("exhausted invitation code attempts", nil)
}

func generateInviteCode() (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// ValidateCode resolves an invitation by code on behalf of claimedEmail.
// The code alone is never enough: the stored invited email must match, so
// a leaked or guessed code cannot be redeemed by someone else.
func (s *InvitationService) ValidateCode(ctx context.Context, code, claimedEmail string) (*models.Invitation, error) {
	var invitation models.Invitation
	err := s.DB.WithContext(ctx).First(&invitation, "code = ?", strings.ToUpper(strings.TrimSpace(code))).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("invitation not found")
		}
		return nil, apperr.Internal("failed loading invitation", err)
	}

	if invitation.Email != normalizeEmail(claimedEmail) {
		return nil, apperr.Conflict("invitation was issued to a different email")
	}

	if invitation.Status != models.InvitationPending {
		return nil, apperr.Conflict("invitation already resolved")
	}

	if invitation.IsExpired(time.Now().UTC()) {
		s.expireNow(ctx, &invitation)
		return nil, apperr.Expired("invitation code has expired")
	}

	return &invitation, nil
}

// Accept resolves a pending invitation for the acting user, creating the
// provisional READER membership when registration has not already done so.
func (s *InvitationService) Accept(ctx context.Context, invitationID, actorID uuid.UUID) (*models.Invitation, error) {
	invitation, err := s.loadForResolution(ctx, invitationID, actorID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Invitation{}).
			Where("id = ? AND status = ?", invitation.ID, models.InvitationPending).
			Updates(map[string]interface{}{
				"status":      models.InvitationAccepted,
				"resolved_at": now,
			})
		if result.Error != nil {
			return apperr.Internal("failed accepting invitation", result.Error)
		}
		if result.RowsAffected == 0 {
			// Lost the race against the sweep or another resolution.
			return apperr.Conflict("invitation already resolved")
		}

		membership := models.Membership{
			FamilyID:     invitation.FamilyID,
			UserID:       actorID,
			Role:         models.FamilyRoleReader,
			KinshipLabel: invitation.KinshipLabel,
		}
		// Registration may already have linked the provisional membership.
		// ON CONFLICT DO NOTHING keeps the insert from failing mid-transaction;
		// postgres aborts the whole transaction on any statement error, which
		// would turn the commit into a rollback and lose the status update.
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "family_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).Create(&membership).Error; err != nil {
			return apperr.Internal("failed creating membership", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	invitation.Status = models.InvitationAccepted
	invitation.ResolvedAt = &now
	return invitation, nil
}

// Refuse resolves a pending invitation negatively and removes the
// provisional membership a registration-time link may have created.
func (s *InvitationService) Refuse(ctx context.Context, invitationID, actorID uuid.UUID) (*models.Invitation, error) {
	invitation, err := s.loadForResolution(ctx, invitationID, actorID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Invitation{}).
			Where("id = ? AND status = ?", invitation.ID, models.InvitationPending).
			Updates(map[string]interface{}{
				"status":      models.InvitationRefused,
				"resolved_at": now,
			})
		if result.Error != nil {
			return apperr.Internal("failed refusing invitation", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.Conflict("invitation already resolved")
		}

		// Only the provisional READER link is rolled back; a role granted
		// through other paths survives a refused invitation.
		return tx.
			Where("family_id = ? AND user_id = ? AND role = ?", invitation.FamilyID, actorID, models.FamilyRoleReader).
			Delete(&models.Membership{}).Error
	})
	if err != nil {
		return nil, err
	}

	invitation.Status = models.InvitationRefused
	invitation.ResolvedAt = &now
	return invitation, nil
}

// CreateProvisionalMembership links a freshly registered user into the
// invited family with the default READER role. The invitation itself stays
// PENDING; accepting is an explicit second step.
func (s *InvitationService) CreateProvisionalMembership(ctx context.Context, invitation *models.Invitation, userID uuid.UUID) error {
	membership := models.Membership{
		FamilyID:     invitation.FamilyID,
		UserID:       userID,
		Role:         models.FamilyRoleReader,
		KinshipLabel: invitation.KinshipLabel,
	}
	if err := s.DB.WithContext(ctx).Create(&membership).Error; err != nil {
		if IsUniqueViolation(err) {
			return nil
		}
		return apperr.Internal("failed creating provisional membership", err)
	}
	return nil
}

// SweepExpired bulk-transitions pending invitations past their expiry. The
// status guard in the WHERE clause makes it safe to run concurrently with
// user-initiated accept/refuse: the losing writer affects zero rows.
func (s *InvitationService) SweepExpired(ctx context.Context) (int64, error) {
	result := s.DB.WithContext(ctx).Model(&models.Invitation{}).
		Where("status = ? AND expires_at < ?", models.InvitationPending, time.Now().UTC()).
		Update("status", models.InvitationExpired)
	if result.Error != nil {
		return 0, apperr.Internal("failed sweeping expired invitations", result.Error)
	}

	if result.RowsAffected > 0 {
		logger.Info("invitations_expired", map[string]interface{}{
			"count": result.RowsAffected,
		})
	}
	return result.RowsAffected, nil
}

func (s *InvitationService) loadForResolution(ctx context.Context, invitationID, actorID uuid.UUID) (*models.Invitation, error) {
	var invitation models.Invitation
	err := s.DB.WithContext(ctx).First(&invitation, "id = ?", invitationID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("invitation not found")
		}
		return nil, apperr.Internal("failed loading invitation", err)
	}

	var actor models.User
	if err := s.DB.WithContext(ctx).First(&actor, "id = ?", actorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal("failed loading user", err)
	}

	if invitation.Email != normalizeEmail(actor.Email) {
		return nil, apperr.Conflict("invitation was issued to a different email")
	}

	if invitation.Status != models.InvitationPending {
		return nil, apperr.Conflict("invitation already resolved")
	}

	if invitation.IsExpired(time.Now().UTC()) {
		s.expireNow(ctx, &invitation)
		return nil, apperr.Expired("invitation code has expired")
	}

	return &invitation, nil
}

// expireNow transitions a stale pending invitation as a side effect of a
// failed validation. Best effort: the hourly sweep will catch it otherwise.
func (s *InvitationService) expireNow(ctx context.Context, invitation *models.Invitation) {
	err := s.DB.WithContext(ctx).Model(&models.Invitation{}).
		Where("id = ? AND status = ?", invitation.ID, models.InvitationPending).
		Update("status", models.InvitationExpired).Error
	if err != nil {
		logger.Error("invitation_expire_failed", err, map[string]interface{}{
			"invitation_id": invitation.ID.String(),
		})
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
