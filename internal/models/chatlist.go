package models

import "time"

// ChatEntry is one conversation row in a user's chat list.
type ChatEntry struct {
	ChatID       string    `bson:"chat_id" json:"chatId"`
	Contact      string    `bson:"contact" json:"contact"`
	ContactModel Role      `bson:"contact_model" json:"contactModel"`
	LastMessage  string    `bson:"last_message" json:"lastMessage"`
	Timestamp    time.Time `bson:"timestamp" json:"timestamp"`
	UnreadCount  int       `bson:"unread_count" json:"unreadCount"`
}

type ChatList struct {
	User      string      `bson:"user" json:"user"`
	UserModel Role        `bson:"user_model" json:"userModel"`
	Chats     []ChatEntry `bson:"chats" json:"chats"`
}

// Find returns the row for chatID, or nil.
func (l *ChatList) Find(chatID string) *ChatEntry {
	if l == nil {
		return nil
	}
	for i := range l.Chats {
		if l.Chats[i].ChatID == chatID {
			return &l.Chats[i]
		}
	}
	return nil
}

// ChatPair links a teacher and a student to their single conversation.
type ChatPair struct {
	ChatID    string    `bson:"chat_id" json:"chatId"`
	TeacherID string    `bson:"teacher_id" json:"teacherId"`
	StudentID string    `bson:"student_id" json:"studentId"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// Side selects how a row is touched by an incoming message.
type Side int

const (
	// SideSender zeroes the unread counter.
	SideSender Side = iota
	// SideReceiver increments the unread counter by one.
	SideReceiver
)

// UpsertOutcome tells which branch of a chat list upsert ran.
type UpsertOutcome int

const (
	RowUpdated UpsertOutcome = iota + 1
	RowInserted
)

func (o UpsertOutcome) String() string {
	switch o {
	case RowUpdated:
		return "updated"
	case RowInserted:
		return "inserted"
	}
	return "unknown"
}
