package ws

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/fathima-sithara/school-chat/internal/apperr"
	"github.com/fathima-sithara/school-chat/internal/hub"
	"github.com/fathima-sithara/school-chat/internal/service"
)

// Client -> server events.
const (
	EvSendMessage   = "sendMessage"
	EvSendMedia     = "sendMedia"
	EvAddReaction   = "addReaction"
	EvDeleteMessage = "deleteMessage"
	EvGetMessages   = "getMessages"
	EvTyping        = "typing"
	EvMarkSeen      = "markSeen"

	evAck       = "ack"
	evError     = "error"
	evConnected = "connected"
)

type inbound struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Ack answers exactly one client request.
type Ack struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Connected is the first frame on a new socket: the rooms it was joined to.
type Connected struct {
	UserID string   `json:"userId"`
	Rooms  []string `json:"rooms"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

type messageRef struct {
	MessageID string `json:"messageId"`
	Reaction  string `json:"reaction"`
}

type chatRef struct {
	ChatID   string `json:"chatId"`
	IsTyping bool   `json:"isTyping"`
}

func (h *Handler) welcome(c *hub.Client) {
	c.Deliver(hub.Envelope{Type: evConnected, Payload: Connected{UserID: c.UserID, Rooms: h.hub.Rooms(c.UserID)}})
}

func (h *Handler) handle(ctx context.Context, c *hub.Client, raw []byte) {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil || in.Type == "" {
		c.Deliver(hub.Envelope{Type: evError, Payload: ErrorEvent{Message: "Invalid message format"}})
		return
	}

	var (
		data any
		err  error
	)
	if !c.Allow() {
		err = apperr.RateLimited("Too many requests")
	} else {
		data, err = h.dispatch(ctx, c, in)
	}

	if err != nil {
		msg := apperr.Message(err)
		if apperr.Status(err) >= 500 {
			h.log.Errorw("websocket event failed", "type", in.Type, "userId", c.UserID, "error", err)
		}
		c.Deliver(hub.Envelope{Type: evAck, ID: in.ID, Payload: Ack{ID: in.ID, Success: false, Error: msg}})
		c.Deliver(hub.Envelope{Type: evError, ID: in.ID, Payload: ErrorEvent{Message: msg}})
		return
	}
	c.Deliver(hub.Envelope{Type: evAck, ID: in.ID, Payload: Ack{ID: in.ID, Success: true, Data: data}})
}

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return apperr.Validation("Missing required fields")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperr.Validation("Invalid payload")
	}
	return nil
}

// dispatch runs one client event as the connection's user. Identity fields in the
// payload are ignored.
func (h *Handler) dispatch(ctx context.Context, c *hub.Client, in inbound) (any, error) {
	switch in.Type {
	case EvSendMessage, EvSendMedia:
		var p service.SendMessageInput
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		if in.Type == EvSendMedia && strings.TrimSpace(p.MediaURL) == "" {
			return nil, apperr.Validation("Media URL is required")
		}
		p.Sender, p.SenderModel = c.UserID, string(c.Role)
		return h.chat.SendMessage(ctx, p)

	case EvAddReaction:
		var p messageRef
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		return h.chat.AddReaction(ctx, p.MessageID, c.UserID, p.Reaction)

	case EvDeleteMessage:
		var p messageRef
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		return h.chat.DeleteMessage(ctx, p.MessageID, c.UserID)

	case EvGetMessages:
		var p chatRef
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		return h.chat.GetMessages(ctx, p.ChatID, c.UserID)

	case EvTyping:
		var p chatRef
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		return nil, h.chat.Typing(ctx, p.ChatID, c.UserID, p.IsTyping)

	case EvMarkSeen:
		var p chatRef
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		return nil, h.chat.MarkSeen(ctx, p.ChatID, c.UserID)
	}
	return nil, apperr.Validation("Unknown event type: " + in.Type)
}
