package service

import (
	"context"

	"github.com/fathima-sithara/school-chat/internal/models"
)

type MessageStore interface {
	Insert(ctx context.Context, m *models.Message) error
	GetByID(ctx context.Context, id string) (*models.Message, error)
	ListByChat(ctx context.Context, chatID string) ([]models.Message, error)
	SetReaction(ctx context.Context, messageID, userID, reaction string) (*models.Message, error)
	SoftDelete(ctx context.Context, messageID, userID string) (*models.Message, error)
}

type ChatListStore interface {
	Get(ctx context.Context, userID string) (*models.ChatList, error)
	FindOrCreatePair(ctx context.Context, teacherID, studentID string) (models.ChatPair, bool, error)
	AddConversation(ctx context.Context, owner string, role models.Role, entry models.ChatEntry) (bool, error)
	Touch(ctx context.Context, owner string, role models.Role, entry models.ChatEntry, side models.Side) (models.UpsertOutcome, error)
	ResetUnread(ctx context.Context, owner, chatID string) error
}

type NotificationStore interface {
	Insert(ctx context.Context, n *models.Notification) error
	InsertMany(ctx context.Context, ns []models.Notification) error
	ListRecent(ctx context.Context, userID string, role models.Role, limit int) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID string, role models.Role) (int, error)
	MarkRead(ctx context.Context, id string) (*models.Notification, error)
	MarkAllRead(ctx context.Context, userID string, role models.Role) (int64, error)
	Delete(ctx context.Context, id string) error
}

type RosterSource interface {
	UserIDsByRole(ctx context.Context, role models.Role) ([]string, error)
	StudentIDsByCourse(ctx context.Context, courseID string) ([]string, error)
}

// Broadcaster pushes real-time events to live connections (the hub).
type Broadcaster interface {
	PublishToUser(userID, event string, payload any)
	PublishToRoom(chatID, event string, payload any)
	JoinRoom(userID, chatID string)
}

// EventPublisher writes domain events to the event bus.
type EventPublisher interface {
	Publish(ctx context.Context, key, typ string, payload any) error
}
