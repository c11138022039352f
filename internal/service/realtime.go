package service

import (
	"time"

	"github.com/fathima-sithara/school-chat/internal/models"
)

// Server -> client event names.
const (
	EventNewChat         = "newChat"
	EventReceiveMessage  = "receiveMessage"
	EventMessageReaction = "messageReaction"
	EventMessageDeleted  = "messageDeleted"
	EventTyping          = "typing"
	EventMessageSeen     = "messageSeen"
	EventNotification    = "notification"
)

type NewChatEvent struct {
	ChatID       string      `json:"chatId"`
	Contact      string      `json:"contact"`
	ContactModel models.Role `json:"contactModel"`
	Timestamp    time.Time   `json:"timestamp"`
}

type TypingEvent struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type SeenEvent struct {
	UserID string `json:"userId"`
	ChatID string `json:"chatId"`
}

type ReactionEvent struct {
	MessageID string `json:"messageId"`
	Reaction  string `json:"reaction"`
	UserID    string `json:"userId"`
}

type DeletedEvent struct {
	MessageID string `json:"messageId"`
}
