package models

import "time"

type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaDocument MediaType = "document"
	MediaVideo    MediaType = "video"
)

func (m MediaType) Valid() bool {
	switch m {
	case MediaImage, MediaDocument, MediaVideo:
		return true
	}
	return false
}

// AllowedReactions is the fixed emoji palette of the client.
var AllowedReactions = map[string]bool{
	"❤️": true,
	"😂":  true,
	"😢":  true,
	"💯":  true,
	"👍":  true,
	"👎":  true,
}

type Reaction struct {
	User     string `bson:"user" json:"user"`
	Reaction string `bson:"reaction" json:"reaction"`
}

type Message struct {
	ID            string     `bson:"_id" json:"id"`
	ChatID        string     `bson:"chat_id" json:"chatId"`
	Sender        string     `bson:"sender" json:"sender"`
	SenderModel   Role       `bson:"sender_model" json:"senderModel"`
	Receiver      string     `bson:"receiver" json:"receiver"`
	ReceiverModel Role       `bson:"receiver_model" json:"receiverModel"`
	Message       string     `bson:"message,omitempty" json:"message,omitempty"`
	MediaURL      string     `bson:"media_url,omitempty" json:"mediaUrl,omitempty"`
	MediaType     MediaType  `bson:"media_type,omitempty" json:"mediaType,omitempty"`
	ReplyTo       string     `bson:"reply_to,omitempty" json:"replyTo,omitempty"`
	Reactions     []Reaction `bson:"reactions" json:"reactions"`
	Timestamp     time.Time  `bson:"timestamp" json:"timestamp"`
	IsDeleted     bool       `bson:"is_deleted" json:"isDeleted"`
}

// SetReaction keeps at most one reaction per user: an existing one is replaced.
func (m *Message) SetReaction(userID, reaction string) {
	for i := range m.Reactions {
		if m.Reactions[i].User == userID {
			m.Reactions[i].Reaction = reaction
			return
		}
	}
	m.Reactions = append(m.Reactions, Reaction{User: userID, Reaction: reaction})
}

// Preview is the chat list / notification text for a message.
func (m *Message) Preview() string {
	if m.Message != "" {
		return m.Message
	}
	if m.MediaURL != "" {
		return "Media message"
	}
	return ""
}
