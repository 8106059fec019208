package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/heritago/backend/internal/apperr"
	"github.com/heritago/backend/pkg/logger"
	"github.com/heritago/backend/pkg/utils"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

// respondErr maps a typed service error onto the response envelope. The
// message travels verbatim; only the status code is derived here.
func respondErr(c *fiber.Ctx, err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return utils.Error(c, fiber.StatusNotFound, err.Error())
	case apperr.KindUnauthorized:
		return utils.Error(c, fiber.StatusForbidden, err.Error())
	case apperr.KindConflict:
		return utils.Error(c, fiber.StatusConflict, err.Error())
	case apperr.KindExpired:
		return utils.Error(c, fiber.StatusGone, err.Error())
	default:
		logger.Error("internal_error", err, map[string]interface{}{
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, err.Error())
	}
}
