package models

import "time"

type NotificationType string

const (
	NotifyMessage    NotificationType = "message"
	NotifyMedia      NotificationType = "media"
	NotifyReaction   NotificationType = "reaction"
	NotifyReply      NotificationType = "reply"
	NotifyAssignment NotificationType = "assignment"
	NotifyGrade      NotificationType = "grade"
	NotifySystem     NotificationType = "system"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotifyMessage, NotifyMedia, NotifyReaction, NotifyReply, NotifyAssignment, NotifyGrade, NotifySystem:
		return true
	}
	return false
}

type NotificationData struct {
	ChatID         string `bson:"chat_id,omitempty" json:"chatId,omitempty"`
	MessageID      string `bson:"message_id,omitempty" json:"messageId,omitempty"`
	Sender         string `bson:"sender,omitempty" json:"sender,omitempty"`
	SenderModel    Role   `bson:"sender_model,omitempty" json:"senderModel,omitempty"`
	AssignmentID   string `bson:"assignment_id,omitempty" json:"assignmentId,omitempty"`
	CourseID       string `bson:"course_id,omitempty" json:"courseId,omitempty"`
	AnnouncementID string `bson:"announcement_id,omitempty" json:"announcementId,omitempty"`
}

type Notification struct {
	ID          string            `bson:"_id" json:"id"`
	UserID      string            `bson:"user_id" json:"userId"`
	UserModel   Role              `bson:"user_model" json:"userModel"`
	Type        NotificationType  `bson:"type" json:"type"`
	Title       string            `bson:"title" json:"title"`
	Message     string            `bson:"message" json:"message"`
	Read        bool              `bson:"read" json:"read"`
	Sender      string            `bson:"sender,omitempty" json:"sender,omitempty"`
	SenderModel Role              `bson:"sender_model,omitempty" json:"senderModel,omitempty"`
	Role        Role              `bson:"role,omitempty" json:"role,omitempty"`
	Data        *NotificationData `bson:"data,omitempty" json:"data,omitempty"`
	Timestamp   time.Time         `bson:"timestamp" json:"timestamp"`
}

// NotificationPage is a user's most recent notifications plus the unread total.
type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unreadCount"`
}
