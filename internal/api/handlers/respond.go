package handlers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/apperr"
	"github.com/EvianLUO/bertopic-analysis-tool/pkg/logger"
)

// failure writes {"success": false, "error": ...} with the status the error maps to.
// Input errors are returned as-is; anything else is prefixed with action.
func failure(c *fiber.Ctx, action string, err error) error {
	status := apperr.HTTPStatus(err)
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}

	msg := err.Error()
	if status >= fiber.StatusInternalServerError {
		logger.Error(action+" failed", zap.String("path", c.Path()), zap.Error(err))
		msg = fmt.Sprintf("%s failed: %v", action, err)
	} else {
		logger.Warn(action+" rejected", zap.String("path", c.Path()), zap.Error(err))
	}

	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   msg,
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   msg,
	})
}
