package ws

import (
	"context"
	"errors"
	"time"

	"github.com/fathima-sithara/school-chat/internal/apperr"
	"github.com/fathima-sithara/school-chat/internal/auth"
	"github.com/fathima-sithara/school-chat/internal/hub"
	"github.com/fathima-sithara/school-chat/internal/models"
	"github.com/fathima-sithara/school-chat/internal/service"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

type TokenVerifier interface {
	Validate(token string) (auth.Identity, error)
}

type Settings struct {
	PingInterval    time.Duration
	WriteDeadline   time.Duration
	MaxMessageBytes int64
	RatePerSecond   int
	SendBuffer      int
}

// Handler serves the real-time endpoint: GET /ws?userId=&userModel=&token=
type Handler struct {
	hub      *hub.Hub
	chat     *service.Orchestrator
	verifier TokenVerifier
	cfg      Settings
	log      *zap.SugaredLogger
}

func NewHandler(h *hub.Hub, chat *service.Orchestrator, v TokenVerifier, cfg Settings, log *zap.SugaredLogger) *Handler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteDeadline <= 0 {
		cfg.WriteDeadline = 10 * time.Second
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 64 * 1024
	}
	return &Handler{hub: h, chat: chat, verifier: v, cfg: cfg, log: log}
}

// Mount registers the upgrade check and the websocket handler on path.
func (h *Handler) Mount(app fiber.Router, path string) {
	app.Use(path, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			if tok, err := auth.ParseBearerToken(c.Get(fiber.HeaderAuthorization)); err == nil {
				c.Locals("token", tok)
			}
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get(path, websocket.New(h.Serve))
}

// authenticate checks the handshake: a participant role and a token issued to userID.
func (h *Handler) authenticate(userID, userModel, token string) (models.Role, error) {
	if userID == "" || userModel == "" || token == "" {
		return "", apperr.Unauthenticated("userId, userModel and token are required")
	}
	role, ok := models.ParseRole(userModel)
	if !ok || !role.IsParticipant() {
		return "", apperr.Unauthenticated("userModel must be Teacher or Student")
	}
	id, err := h.verifier.Validate(token)
	if err != nil {
		return "", apperr.Unauthenticated("invalid token")
	}
	if id.UserID != userID {
		return "", apperr.Unauthenticated("token does not belong to userId")
	}
	if id.Role != "" && id.Role != role {
		return "", apperr.Unauthenticated("token role does not match userModel")
	}
	return role, nil
}

func (h *Handler) Serve(conn *websocket.Conn) {
	userID := conn.Query("userId")
	token := conn.Query("token")
	if token == "" {
		token, _ = conn.Locals("token").(string)
	}
	role, err := h.authenticate(userID, conn.Query("userModel"), token)
	if err != nil {
		h.log.Warnw("websocket handshake rejected", "userId", userID, "error", err)
		h.closeWith(conn, websocket.ClosePolicyViolation, apperr.Message(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := hub.NewClient(userID, role, h.cfg.SendBuffer, h.cfg.RatePerSecond)
	if err := h.hub.Register(ctx, client); err != nil {
		code := websocket.CloseInternalServerErr
		if errors.Is(err, apperr.ErrUnauthenticated) {
			code = websocket.ClosePolicyViolation
		}
		h.closeWith(conn, code, apperr.Message(err))
		return
	}

	h.welcome(client)

	done := make(chan struct{})
	go h.writePump(conn, client, done)
	h.readPump(ctx, conn, client)

	h.hub.Deregister(client)
	<-done
}

func (h *Handler) closeWith(conn *websocket.Conn, code int, msg string) {
	deadline := time.Now().Add(h.cfg.WriteDeadline)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, msg), deadline)
	_ = conn.Close()
}

func (h *Handler) readPump(ctx context.Context, conn *websocket.Conn, c *hub.Client) {
	pongWait := h.cfg.PingInterval * 2
	conn.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Infow("websocket read ended", "userId", c.UserID, "socketId", c.ID, "error", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		h.handle(ctx, c, raw)
	}
}

func (h *Handler) writePump(conn *websocket.Conn, c *hub.Client, done chan<- struct{}) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		close(done)
	}()
	for {
		select {
		case b, ok := <-c.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteDeadline))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				h.log.Warnw("websocket write failed", "userId", c.UserID, "socketId", c.ID, "error", err)
				// unblocks the reader
				_ = conn.Close()
				h.drain(c)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				h.drain(c)
				return
			}
		}
	}
}

// drain discards queued frames until the hub closes the client.
func (h *Handler) drain(c *hub.Client) {
	for range c.Send() {
	}
}
