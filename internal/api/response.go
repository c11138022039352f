package api

import (
	"errors"

	"github.com/fathima-sithara/school-chat/internal/apperr"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Body is the shape of every JSON response.
type Body struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func JSONSuccess(c *fiber.Ctx, status int, msg string, data any) error {
	return c.Status(status).JSON(Body{Success: true, Message: msg, Data: data})
}

func JSONError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(Body{Success: false, Message: msg})
}

// ErrorHandler renders errors returned by handlers. Typed errors keep their status and
// message; anything else is a generic 500 and gets logged.
func ErrorHandler(log *zap.SugaredLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return JSONError(c, fe.Code, fe.Message)
		}
		status := apperr.Status(err)
		if status >= fiber.StatusInternalServerError {
			log.Errorw("request failed", "method", c.Method(), "path", c.Path(), "requestId", requestID(c), "error", err)
		}
		return JSONError(c, status, apperr.Message(err))
	}
}
