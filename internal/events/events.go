package events

import (
	"encoding/json"
	"time"
)

// Event types published by this service on the chat events topic.
const (
	TypeChatCreated         = "chat.created"
	TypeMessageSent         = "message.sent"
	TypeMessageDeleted      = "message.deleted"
	TypeReactionAdded       = "message.reaction"
	TypeNotificationCreated = "notification.created"
)

// Event types consumed from the school events topic and fanned out as notifications.
const (
	TypeAnnouncementCreated = "announcement.created"
	TypeAssignmentCreated   = "assignment.created"
	TypeAssignmentGraded    = "assignment.graded"
)

// Event is the envelope of every record on both topics.
type Event struct {
	Type    string          `json:"type"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

func NewEvent(typ string, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: typ, At: time.Now().UTC(), Payload: b}, nil
}

type AnnouncementEvent struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Message     string   `json:"message"`
	TargetRoles []string `json:"targetRoles"`
}

type AssignmentEvent struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CourseID  string    `json:"courseId"`
	TeacherID string    `json:"teacherId"`
	DueDate   time.Time `json:"dueDate"`
}

type GradeEntry struct {
	StudentID string  `json:"studentId"`
	Grade     float64 `json:"grade"`
	Feedback  string  `json:"feedback,omitempty"`
}

type GradeEvent struct {
	AssignmentID string       `json:"assignmentId"`
	Title        string       `json:"title"`
	TeacherID    string       `json:"teacherId"`
	Grades       []GradeEntry `json:"grades"`
}
