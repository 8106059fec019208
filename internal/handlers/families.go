package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/heritago/backend/internal/apperr"
	"github.com/heritago/backend/internal/middleware"
	"github.com/heritago/backend/internal/models"
	"github.com/heritago/backend/internal/services"
	"github.com/heritago/backend/pkg/logger"
	"github.com/heritago/backend/pkg/utils"
	"gorm.io/gorm"
)

type FamiliesHandler struct {
	DB       *gorm.DB
	Families *services.FamilyService
	Authz    *services.AuthzService
}

func NewFamiliesHandler(db *gorm.DB, families *services.FamilyService, authz *services.AuthzService) *FamiliesHandler {
	return &FamiliesHandler{DB: db, Families: families, Authz: authz}
}

type createFamilyRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func (h *FamiliesHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createFamilyRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}

	family, err := h.Families.Create(c.Context(), currentUser.ID, req.Name, req.Description)
	if err != nil {
		return respondErr(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "family_created", map[string]interface{}{
		"family_id":   family.ID.String(),
		"family_name": family.Name,
	})

	return utils.Success(c, fiber.StatusCreated, family)
}

func (h *FamiliesHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var families []models.Family
	if err := h.DB.
		Model(&models.Family{}).
		Joins("JOIN memberships ON memberships.family_id = families.id").
		Where("memberships.user_id = ?", currentUser.ID).
		Order("families.created_at DESC").
		Find(&families).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing families")
	}

	return utils.Success(c, fiber.StatusOK, families)
}

func (h *FamiliesHandler) Get(c *fiber.Ctx) error {
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

	var family models.Family
	if err := h.DB.Preload("Memberships.User").First(&family, "id = ?", familyID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "family not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading family")
	}

	return utils.Success(c, fiber.StatusOK, family)
}

type addMemberRequest struct {
	Email        string            `json:"email"`
	Role         models.FamilyRole `json:"role"`
	KinshipLabel *string           `json:"kinshipLabel"`
}

func (h *FamiliesHandler) AddMember(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	familyID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid family id")
	}

	var req addMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Email) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email is required")
	}
	if !models.IsValidFamilyRole(req.Role) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid role")
	}

	membership, err := h.Families.AddMember(c.Context(), familyID, currentUser.ID, services.AddMemberInput{
		Email:        req.Email,
		Role:         req.Role,
		KinshipLabel: req.KinshipLabel,
	})
	if err != nil {
		return respondErr(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "family_member_added", map[string]interface{}{
		"family_id":     familyID.String(),
		"membership_id": membership.ID.String(),
		"role":          string(membership.Role),
	})

	return utils.Success(c, fiber.StatusCreated, membership)
}

type changeRoleRequest struct {
	Role models.FamilyRole `json:"role"`
}

func (h *FamiliesHandler) ChangeRole(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	familyID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid family id")
	}
	membershipID, err := parseUUID(c.Params("memberId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid membership id")
	}

	var req changeRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if !models.IsValidFamilyRole(req.Role) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid role")
	}

	membership, err := h.Families.ChangeRole(c.Context(), familyID, currentUser.ID, membershipID, req.Role)
	if err != nil {
		if apperr.IsKind(err, apperr.KindUnauthorized) {
			logger.Warn("role_change_denied", map[string]interface{}{
				"family_id": familyID.String(),
				"actor_id":  currentUser.ID.String(),
				"reason":    err.Error(),
			})
		}
		return respondErr(c, err)
	}

	return utils.Success(c, fiber.StatusOK, membership)
}
