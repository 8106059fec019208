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

type PublicationsHandler struct {
	DB           *gorm.DB
	Publications *services.PublicationService
	Authz        *services.AuthzService
}

func NewPublicationsHandler(db *gorm.DB, publications *services.PublicationService, authz *services.AuthzService) *PublicationsHandler {
	return &PublicationsHandler{DB: db, Publications: publications, Authz: authz}
}

func (h *PublicationsHandler) Request(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	contentID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid content id")
	}

	request, err := h.Publications.Request(c.Context(), contentID, currentUser.ID)
	if err != nil {
		return respondErr(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "publication_requested", map[string]interface{}{
		"request_id": request.ID.String(),
		"content_id": contentID.String(),
	})

	return utils.Success(c, fiber.StatusCreated, request)
}

func (h *PublicationsHandler) Approve(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	requestID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request id")
	}

	request, err := h.Publications.Approve(c.Context(), requestID, currentUser.ID)
	if err != nil {
		return respondErr(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "publication_approved", map[string]interface{}{
		"request_id": request.ID.String(),
		"content_id": request.ContentID.String(),
	})

	return utils.Success(c, fiber.StatusOK, request)
}

type rejectPublicationRequest struct {
	Comment string `json:"comment"`
}

func (h *PublicationsHandler) Reject(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	requestID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request id")
	}

	var req rejectPublicationRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Comment = strings.TrimSpace(req.Comment)

	request, err := h.Publications.Reject(c.Context(), requestID, currentUser.ID, req.Comment)
	if err != nil {
		return respondErr(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "publication_rejected", map[string]interface{}{
		"request_id": request.ID.String(),
		"content_id": request.ContentID.String(),
	})

	return utils.Success(c, fiber.StatusOK, request)
}

// ListForFamily returns the full publication-request history for a family's
// contents, newest first. Any member may read it.
func (h *PublicationsHandler) ListForFamily(c *fiber.Ctx) error {
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

	var requests []models.PublicationRequest
	if err := h.DB.
		Joins("JOIN contents ON contents.id = publication_requests.content_id").
		Where("contents.family_id = ?", familyID).
		Order("publication_requests.requested_at DESC").
		Preload("Content").
		Find(&requests).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing publication requests")
	}

	return utils.Success(c, fiber.StatusOK, requests)
}

// ListPending serves the superadmin review queue.
func (h *PublicationsHandler) ListPending(c *fiber.Ctx) error {
	var requests []models.PublicationRequest
	if err := h.DB.
		Where("status = ?", models.PublicationPending).
		Order("requested_at ASC").
		Preload("Content").
		Preload("Requester").
		Find(&requests).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing publication requests")
	}

	return utils.Success(c, fiber.StatusOK, requests)
}
