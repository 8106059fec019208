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

type AuthHandler struct {
	DB          *gorm.DB
	Invitations *services.InvitationService
}

func NewAuthHandler(db *gorm.DB, invitations *services.InvitationService) *AuthHandler {
	return &AuthHandler{DB: db, Invitations: invitations}
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	InviteCode  string `json:"inviteCode"`
}

// Register creates an account. When an invitation code is supplied it is
// validated against the email and a provisional READER membership is
// created; the invitation itself stays pending until explicitly accepted.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return utils.Error(c, fiber.StatusBadRequest, "valid email is required")
	}
	if len(req.Password) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		return utils.Error(c, fiber.StatusBadRequest, "displayName is required")
	}

	var invitation *models.Invitation
	if code := strings.TrimSpace(req.InviteCode); code != "" {
		var err error
		invitation, err = h.Invitations.ValidateCode(c.Context(), code, email)
		if err != nil {
			return respondErr(c, err)
		}
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
	}

	user := models.User{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
		Role:         models.UserRoleMember,
		Active:       true,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		if services.IsUniqueViolation(err) {
			return utils.Error(c, fiber.StatusConflict, "email is already registered")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating account")
	}

	if invitation != nil {
		if err := h.Invitations.CreateProvisionalMembership(c.Context(), invitation, user.ID); err != nil {
			return respondErr(c, err)
		}
	}

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	logger.InfoWithUser(user.ID.String(), "user_registered", map[string]interface{}{
		"linked_invitation": invitation != nil,
	})

	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"user":  user,
		"token": token,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	// A missing account and a wrong password answer identically so login
	// cannot be used to probe which emails exist.
	var user models.User
	if err := h.DB.First(&user, "email = ?", email).Error; err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}
	if !user.Active || !utils.CheckPassword(user.PasswordHash, req.Password) {
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"user":  user,
		"token": token,
	})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, currentUser)
}
