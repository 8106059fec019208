package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/heritago/backend/internal/middleware"
	"github.com/heritago/backend/internal/models"
	"github.com/heritago/backend/internal/services"
	"github.com/heritago/backend/pkg/utils"
	"gorm.io/gorm"
)

type ContentsHandler struct {
	DB    *gorm.DB
	Authz *services.AuthzService
}

func NewContentsHandler(db *gorm.DB, authz *services.AuthzService) *ContentsHandler {
	return &ContentsHandler{DB: db, Authz: authz}
}

type createContentRequest struct {
	FamilyID string             `json:"familyID"`
	Title    string             `json:"title"`
	Body     string             `json:"body"`
	Category *string            `json:"category"`
	Type     models.ContentType `json:"type"`
}

func (h *ContentsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createContentRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	familyID, err := parseUUID(req.FamilyID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid family id")
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return utils.Error(c, fiber.StatusBadRequest, "title is required")
	}
	if !models.IsValidContentType(req.Type) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid content type")
	}

	if err := h.Authz.Authorize(c.Context(), currentUser.ID, familyID, services.ActionCreateContent); err != nil {
		return respondErr(c, err)
	}

	content := models.Content{
		FamilyID: &familyID,
		AuthorID: currentUser.ID,
		Title:    req.Title,
		Body:     req.Body,
		Category: req.Category,
		Type:     req.Type,
		Status:   models.ContentDraft,
	}
	if err := h.DB.Create(&content).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating content")
	}

	return utils.Success(c, fiber.StatusCreated, content)
}

// ListPublic serves the public catalog; no authentication required.
func (h *ContentsHandler) ListPublic(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.Content{}).Where("status = ?", models.ContentPublished)
	if contentType := strings.TrimSpace(c.Query("type")); contentType != "" {
		query = query.Where("type = ?", contentType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting contents")
	}

	var contents []models.Content
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Find(&contents).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing contents")
	}

	return utils.Paginated(c, contents, p.Page, p.Limit, total)
}

// ListForFamily returns the family's private archive: everything not yet
// published. Membership in the family is required.
func (h *ContentsHandler) ListForFamily(c *fiber.Ctx) error {
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

	var contents []models.Content
	if err := h.DB.
		Where("family_id = ? AND status <> ?", familyID, models.ContentPublished).
		Order("created_at DESC").
		Find(&contents).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing contents")
	}

	return utils.Success(c, fiber.StatusOK, contents)
}

func (h *ContentsHandler) Get(c *fiber.Ctx) error {
	contentID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid content id")
	}

	var content models.Content
	if err := h.DB.First(&content, "id = ?", contentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "content not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading content")
	}

	if content.Status == models.ContentPublished {
		return utils.Success(c, fiber.StatusOK, content)
	}

	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	if content.FamilyID == nil {
		return utils.Error(c, fiber.StatusForbidden, "content access denied")
	}
	if !currentUser.IsSuperadmin() {
		if _, err := h.Authz.Membership(c.Context(), *content.FamilyID, currentUser.ID); err != nil {
			return respondErr(c, err)
		}
	}

	return utils.Success(c, fiber.StatusOK, content)
}
