package serverutils

import (
	"errors"

	"ai-consultation-be/internal/pkg/logger"
	"ai-consultation-be/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware turns errors returned by handlers into the JSON
// envelope with the status from the error taxonomy.
func ErrorHandlerMiddleware(log logger.ILogger) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		return WriteError(ctx, err, log)
	}
}

// ErrorHandler is the fiber.Config hook for errors raised outside handlers,
// such as an oversized body.
func ErrorHandler(log logger.ILogger) fiber.ErrorHandler {
	return func(ctx *fiber.Ctx, err error) error {
		return WriteError(ctx, err, log)
	}
}

func WriteError(ctx *fiber.Ctx, err error, log logger.ILogger) error {
	code := apperr.StatusCode(err)
	message := apperr.PublicMessage(err)

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
		if code == fiber.StatusRequestEntityTooLarge {
			message = "Request body is too large"
		}
	}

	if code >= fiber.StatusInternalServerError && log != nil {
		log.Error("HTTP", "Request failed", map[string]interface{}{
			"method": ctx.Method(),
			"path":   ctx.Path(),
			"status": code,
			"error":  err.Error(),
		})
	}

	return ctx.Status(code).JSON(ErrorResponse(code, message))
}
