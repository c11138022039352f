package api

import (
	"fmt"
	"time"

	"github.com/fathima-sithara/school-chat/internal/apperr"
	"github.com/fathima-sithara/school-chat/internal/auth"
	"github.com/fathima-sithara/school-chat/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	localRequestID = "requestId"
	localIdentity  = "identity"
	headerReqID    = "X-Request-ID"
)

type TokenVerifier interface {
	Validate(token string) (auth.Identity, error)
}

// RequestID reuses an incoming X-Request-ID or generates one.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(headerReqID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals(localRequestID, id)
		c.Set(headerReqID, id)
		return c.Next()
	}
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals(localRequestID).(string)
	return id
}

func RequestLogger(log *zap.SugaredLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		latency := time.Since(start)
		status := c.Response().StatusCode()
		if err != nil {
			// the error handler has not run yet
			status = apperr.Status(err)
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
			log.Warnw("HTTP Request Error",
				"method", c.Method(),
				"path", c.Path(),
				"ip", c.IP(),
				"status", status,
				"latency", latency,
				"requestId", requestID(c),
				"error", err,
			)
			return err
		}
		log.Infow("HTTP Request",
			"method", c.Method(),
			"path", c.Path(),
			"ip", c.IP(),
			"status", status,
			"latency", latency,
			"requestId", requestID(c),
		)
		return nil
	}
}

// Recover turns a panic into a 500 and logs it.
func Recover(log *zap.SugaredLogger) fiber.Handler {
	return recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			log.Errorw("panic recovered", "path", c.Path(), "requestId", requestID(c), "panic", fmt.Sprint(e))
		},
	})
}

// Authenticate requires a valid bearer token and stores its identity on the context.
func Authenticate(v TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := auth.ParseBearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return apperr.Unauthenticated("missing or malformed authorization header")
		}
		id, err := v.Validate(token)
		if err != nil {
			return apperr.Unauthenticated("invalid token")
		}
		c.Locals(localIdentity, id)
		return c.Next()
	}
}

// RequireRoles lets through identities holding one of roles.
func RequireRoles(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := identity(c)
		for _, r := range roles {
			if id.Role == r {
				return c.Next()
			}
		}
		return apperr.Forbidden("role not permitted")
	}
}

func identity(c *fiber.Ctx) auth.Identity {
	id, _ := c.Locals(localIdentity).(auth.Identity)
	return id
}

// actingAs resolves the user a request acts for: an empty userID means the caller.
// Participants may only act for themselves; admins may act for anyone.
func actingAs(c *fiber.Ctx, userID string) (string, error) {
	id := identity(c)
	if userID == "" {
		return id.UserID, nil
	}
	if userID != id.UserID && id.Role != models.RoleAdmin {
		return "", apperr.Forbidden("Unauthorized")
	}
	return userID, nil
}
