package api

import (
	"context"
	"net/http"

	"github.com/fathima-sithara/school-chat/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"
)

type Options struct {
	Verifier TokenVerifier
	// Limiter is optional; nil disables REST rate limiting.
	Limiter Limiter
	// Metrics is served at /metrics when set.
	Metrics http.Handler
	// Health reports dependency health for /healthz.
	Health      func(ctx context.Context) error
	UploadLimit int64
	Log         *zap.SugaredLogger
}

// NewApp builds the Fiber app with the global middleware and the REST routes. The
// websocket endpoint is mounted by the caller.
func NewApp(h *Handler, o Options) *fiber.App {
	bodyLimit := 4 * 1024 * 1024
	if o.UploadLimit > 0 {
		bodyLimit = int(o.UploadLimit) + 1024*1024
	}
	app := fiber.New(fiber.Config{
		AppName:      "school-chat",
		BodyLimit:    bodyLimit,
		ErrorHandler: ErrorHandler(o.Log),
	})
	app.Use(Recover(o.Log))
	app.Use(RequestID())
	app.Use(RequestLogger(o.Log))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if o.Health != nil {
			if err := o.Health(c.UserContext()); err != nil {
				o.Log.Warnw("health check failed", "error", err)
				return JSONError(c, fiber.StatusServiceUnavailable, "unhealthy")
			}
		}
		return JSONSuccess(c, fiber.StatusOK, "", fiber.Map{"status": "ok"})
	})
	if o.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(o.Metrics))
	}

	api := app.Group("/api", Authenticate(o.Verifier), RequireRoles(models.RoleStudent, models.RoleTeacher, models.RoleAdmin))
	if o.Limiter != nil {
		api.Use(RateLimit(o.Limiter, o.Log))
	}

	chat := api.Group("/chat")
	chat.Post("/initiate", h.InitiateChat)
	chat.Post("/send", h.SendMessage)
	chat.Get("/chatlist", h.ChatList)
	chat.Post("/reaction", h.AddReaction)
	chat.Post("/delete", h.DeleteMessage)
	chat.Post("/upload", h.Upload)
	chat.Get("/:chatId", h.Messages)

	users := api.Group("/users")
	users.Get("/:userId/presence", h.Presence)

	notif := api.Group("/notifications")
	notif.Get("/", h.Notifications)
	notif.Put("/read-all", h.MarkAllRead)
	notif.Put("/:id/read", h.MarkRead)
	notif.Delete("/:id", h.DeleteNotification)

	return app
}
