package api

import (
	"context"
	"io"
	"net/http"

	"github.com/fathima-sithara/school-chat/internal/apperr"
	"github.com/fathima-sithara/school-chat/internal/auth"
	"github.com/fathima-sithara/school-chat/internal/hub"
	"github.com/fathima-sithara/school-chat/internal/media"
	"github.com/fathima-sithara/school-chat/internal/models"
	"github.com/fathima-sithara/school-chat/internal/service"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// PresenceReader answers whether a user is connected.
type PresenceReader interface {
	Presence(ctx context.Context, userID string) (hub.Presence, error)
}

type Handler struct {
	chat        *service.Orchestrator
	notify      *service.Dispatcher
	media       *media.Service
	presence    PresenceReader
	uploadLimit int64
	log         *zap.SugaredLogger
}

func NewHandler(chat *service.Orchestrator, notify *service.Dispatcher, m *media.Service, presence PresenceReader, uploadLimit int64, log *zap.SugaredLogger) *Handler {
	return &Handler{chat: chat, notify: notify, media: m, presence: presence, uploadLimit: uploadLimit, log: log}
}

type initiateReq struct {
	TeacherID     string `json:"teacherId"`
	StudentID     string `json:"studentId"`
	InitiatorID   string `json:"initiatorId"`
	ReceiverID    string `json:"receiverId"`
	InitiatorType string `json:"initiatorType"`
}

// pair accepts either explicit ids or the initiator/receiver form.
func (r initiateReq) pair() (teacherID, studentID string, err error) {
	if r.TeacherID != "" || r.StudentID != "" {
		return r.TeacherID, r.StudentID, nil
	}
	if r.InitiatorID == "" || r.ReceiverID == "" {
		return "", "", apperr.Validation("Missing required fields")
	}
	role, _ := models.ParseRole(r.InitiatorType)
	switch role {
	case models.RoleTeacher:
		return r.InitiatorID, r.ReceiverID, nil
	case models.RoleStudent:
		return r.ReceiverID, r.InitiatorID, nil
	}
	return "", "", apperr.Validation("initiatorType must be Teacher or Student")
}

// ownSide lets a teacher open chats only as the teacher and a student only as the
// student of the pair. Admins may open any pair.
func ownSide(id auth.Identity, teacherID, studentID string) error {
	switch id.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleTeacher:
		if id.UserID == teacherID {
			return nil
		}
	case models.RoleStudent:
		if id.UserID == studentID {
			return nil
		}
	}
	return apperr.Forbidden("Unauthorized")
}

func (h *Handler) InitiateChat(c *fiber.Ctx) error {
	var req initiateReq
	if err := bind(c, &req); err != nil {
		return err
	}
	teacherID, studentID, err := req.pair()
	if err != nil {
		return err
	}
	if err := ownSide(identity(c), teacherID, studentID); err != nil {
		return err
	}

	conv, err := h.chat.InitiateConversation(c.UserContext(), teacherID, studentID)
	if err != nil {
		return err
	}
	if conv.Created {
		return JSONSuccess(c, fiber.StatusCreated, "Chat initiated", conv)
	}
	return JSONSuccess(c, fiber.StatusOK, "Chat already exists", conv)
}

func (h *Handler) SendMessage(c *fiber.Ctx) error {
	var in service.SendMessageInput
	if err := bind(c, &in); err != nil {
		return err
	}
	sender, err := actingAs(c, in.Sender)
	if err != nil {
		return err
	}
	in.Sender = sender
	// participants speak with the role their token carries
	if id := identity(c); id.Role != models.RoleAdmin {
		in.SenderModel = id.Role.String()
		in.ReceiverModel = id.Role.Counterpart().String()
	}

	msg, err := h.chat.SendMessage(c.UserContext(), in)
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusCreated, "Message sent", msg)
}

func (h *Handler) ChatList(c *fiber.Ctx) error {
	userID, err := actingAs(c, c.Query("userId"))
	if err != nil {
		return err
	}
	list, err := h.chat.GetChatList(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusOK, "", list)
}

func (h *Handler) Messages(c *fiber.Ctx) error {
	userID, err := actingAs(c, c.Query("userId"))
	if err != nil {
		return err
	}
	msgs, err := h.chat.GetMessages(c.UserContext(), c.Params("chatId"), userID)
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusOK, "", msgs)
}

type presenceResp struct {
	UserID   string `json:"userId"`
	Status   string `json:"status"`
	LastSeen int64  `json:"lastSeen"`
}

func (h *Handler) Presence(c *fiber.Ctx) error {
	userID := c.Params("userId")
	p, err := h.presence.Presence(c.UserContext(), userID)
	if err != nil {
		h.log.Warnw("presence lookup failed", "user", userID, "err", err)
		return apperr.Persistence("Failed to fetch presence", err)
	}
	return JSONSuccess(c, fiber.StatusOK, "", presenceResp{UserID: userID, Status: p.Status, LastSeen: p.LastSeen})
}

type reactionReq struct {
	MessageID string `json:"messageId" validate:"required"`
	UserID    string `json:"userId"`
	Reaction  string `json:"reaction" validate:"required"`
}

func (h *Handler) AddReaction(c *fiber.Ctx) error {
	var req reactionReq
	if err := bind(c, &req); err != nil {
		return err
	}
	userID, err := actingAs(c, req.UserID)
	if err != nil {
		return err
	}
	msg, err := h.chat.AddReaction(c.UserContext(), req.MessageID, userID, req.Reaction)
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusOK, "Reaction added", msg)
}

type deleteReq struct {
	MessageID string `json:"messageId" validate:"required"`
	UserID    string `json:"userId"`
}

func (h *Handler) DeleteMessage(c *fiber.Ctx) error {
	var req deleteReq
	if err := bind(c, &req); err != nil {
		return err
	}
	userID, err := actingAs(c, req.UserID)
	if err != nil {
		return err
	}
	msg, err := h.chat.DeleteMessage(c.UserContext(), req.MessageID, userID)
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusOK, "Message deleted", msg)
}

// Upload stores a multipart "file" and returns its URL for a following sendMedia.
func (h *Handler) Upload(c *fiber.Ctx) error {
	if h.media == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "media storage is not configured")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return apperr.Validation("file missing")
	}
	if h.uploadLimit > 0 && fh.Size > h.uploadLimit {
		return apperr.Validation("File too large")
	}
	f, err := fh.Open()
	if err != nil {
		return apperr.Validation("cannot open file")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return apperr.Validation("cannot read file")
	}

	ct := fh.Header.Get(fiber.HeaderContentType)
	if ct == "" || ct == fiber.MIMEOctetStream {
		ct = http.DetectContentType(data)
	}
	up, err := h.media.Upload(c.UserContext(), identity(c).UserID, fh.Filename, ct, data)
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusCreated, "File uploaded", up)
}

func (h *Handler) Notifications(c *fiber.Ctx) error {
	userID, err := actingAs(c, c.Query("userId"))
	if err != nil {
		return err
	}
	page, err := h.notify.List(c.UserContext(), userID, c.Query("role"))
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusOK, "", page)
}

type readAllReq struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

func (h *Handler) MarkAllRead(c *fiber.Ctx) error {
	var req readAllReq
	if err := bind(c, &req); err != nil {
		return err
	}
	userID, err := actingAs(c, req.UserID)
	if err != nil {
		return err
	}
	n, err := h.notify.MarkAllRead(c.UserContext(), userID, req.Role)
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusOK, "All notifications marked as read", fiber.Map{"updated": n})
}

func (h *Handler) MarkRead(c *fiber.Ctx) error {
	n, err := h.notify.MarkRead(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusOK, "Notification marked as read", n)
}

func (h *Handler) DeleteNotification(c *fiber.Ctx) error {
	if err := h.notify.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusOK, "Notification deleted", nil)
}
