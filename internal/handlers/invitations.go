package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/heritago/backend/internal/middleware"
	"github.com/heritago/backend/internal/models"
	"github.com/heritago/backend/internal/services"
	"github.com/heritago/backend/pkg/logger"
	"github.com/heritago/backend/pkg/utils"
	"gorm.io/gorm"
)

type InvitationsHandler struct {
	DB          *gorm.DB
	Invitations *services.InvitationService
	Authz       *services.AuthzService
}

func NewInvitationsHandler(db *gorm.DB, invitations *services.InvitationService, authz *services.AuthzService) *InvitationsHandler {
	return &InvitationsHandler{DB: db, Invitations: invitations, Authz: authz}
}

type createInvitationRequest struct {
	Email        string  `json:"email"`
	Name         *string `json:"name"`
	Phone        *string `json:"phone"`
	KinshipLabel *string `json:"kinshipLabel"`
}

func (h *InvitationsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	familyID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid family id")
	}

	var req createInvitationRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Email) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email is required")
	}

	invitation, err := h.Invitations.Create(c.Context(), familyID, currentUser.ID, services.CreateInvitationInput{
		Email:        req.Email,
		Name:         req.Name,
		Phone:        req.Phone,
		KinshipLabel: req.KinshipLabel,
	})
	if err != nil {
		return respondErr(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "invitation_created", map[string]interface{}{
		"invitation_id": invitation.ID.String(),
		"family_id":     familyID.String(),
	})

	return utils.Success(c, fiber.StatusCreated, invitation)
}

// ListForFamily returns the family's full invitation history; resolved and
// expired invitations are retained, never deleted.
func (h *InvitationsHandler) ListForFamily(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	familyID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid family id")
	}

	if _, err := h.Authz.Membership(c.Context(), familyID, currentUser.ID); err != nil {
		return respondErr(c, err)
	}

	var invitations []models.Invitation
	if err := h.DB.
		Where("family_id = ?", familyID).
		Order("created_at DESC").
		Find(&invitations).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing invitations")
	}

	return utils.Success(c, fiber.StatusOK, invitations)
}

// Validate checks a code on behalf of an email before registration. It is
// unauthenticated; possession of the code alone is not enough, the email
// must match the invitation.
func (h *InvitationsHandler) Validate(c *fiber.Ctx) error {
	code := strings.TrimSpace(c.Query("code"))
	email := strings.TrimSpace(c.Query("email"))
	if code == "" || email == "" {
		return utils.Error(c, fiber.StatusBadRequest, "code and email are required")
	}

	invitation, err := h.Invitations.ValidateCode(c.Context(), code, email)
	if err != nil {
		return respondErr(c, err)
	}

	return utils.Success(c, fiber.StatusOK, invitation)
}

func (h *InvitationsHandler) Accept(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	invitationID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid invitation id")
	}

	invitation, err := h.Invitations.Accept(c.Context(), invitationID, currentUser.ID)
	if err != nil {
		return respondErr(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "invitation_accepted", map[string]interface{}{
		"invitation_id": invitation.ID.String(),
		"family_id":     invitation.FamilyID.String(),
	})

	return utils.Success(c, fiber.StatusOK, invitation)
}

func (h *InvitationsHandler) Refuse(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	invitationID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid invitation id")
	}

	invitation, err := h.Invitations.Refuse(c.Context(), invitationID, currentUser.ID)
	if err != nil {
		return respondErr(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "invitation_refused", map[string]interface{}{
		"invitation_id": invitation.ID.String(),
	})

	return utils.Success(c, fiber.StatusOK, invitation)
}
