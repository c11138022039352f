package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fathima-sithara/school-chat/internal/apperr"
	"github.com/fathima-sithara/school-chat/internal/events"
	"github.com/fathima-sithara/school-chat/internal/models"
	"go.uber.org/zap"
)

// Orchestrator runs the chat use cases: it persists through the stores, then pushes
// real-time events, notifications and bus events. Persistence of the primary record
// decides success; everything after it is best effort and only logged.
type Orchestrator struct {
	messages MessageStore
	chats    ChatListStore
	notifier *Dispatcher
	rt       Broadcaster
	bus      EventPublisher
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewOrchestrator(messages MessageStore, chats ChatListStore, notifier *Dispatcher, rt Broadcaster, bus EventPublisher, log *zap.SugaredLogger) *Orchestrator {
	if bus == nil {
		bus = events.Nop{}
	}
	return &Orchestrator{
		messages: messages,
		chats:    chats,
		notifier: notifier,
		rt:       rt,
		bus:      bus,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type Conversation struct {
	ChatID  string `json:"chatId"`
	Created bool   `json:"created"`
}

// InitiateConversation returns the single conversation between a teacher and a
// student, creating it on first use. Both chat lists get a row for it.
func (o *Orchestrator) InitiateConversation(ctx context.Context, teacherID, studentID string) (*Conversation, error) {
	if teacherID == "" || studentID == "" {
		return nil, apperr.Validation("Missing required fields")
	}
	if !models.ValidID(teacherID) || !models.ValidID(studentID) {
		return nil, apperr.Validation("Invalid teacherId or studentId format")
	}
	if teacherID == studentID {
		return nil, apperr.Validation("Cannot start a chat with yourself")
	}

	pair, created, err := o.chats.FindOrCreatePair(ctx, teacherID, studentID)
	if err != nil {
		return nil, apperr.Persistence("Failed to initiate chat", err)
	}

	now := o.now()
	teacherRow := models.ChatEntry{ChatID: pair.ChatID, Contact: studentID, ContactModel: models.RoleStudent, Timestamp: now}
	studentRow := models.ChatEntry{ChatID: pair.ChatID, Contact: teacherID, ContactModel: models.RoleTeacher, Timestamp: now}

	// re-run on every call so a pair left without rows by a crash gets repaired
	addedT, err := o.chats.AddConversation(ctx, teacherID, models.RoleTeacher, teacherRow)
	if err != nil {
		return nil, apperr.Persistence("Failed to initiate chat", err)
	}
	addedS, err := o.chats.AddConversation(ctx, studentID, models.RoleStudent, studentRow)
	if err != nil {
		return nil, apperr.Persistence("Failed to initiate chat", err)
	}

	o.rt.JoinRoom(teacherID, pair.ChatID)
	o.rt.JoinRoom(studentID, pair.ChatID)
	if addedT {
		o.rt.PublishToUser(teacherID, EventNewChat, NewChatEvent{ChatID: pair.ChatID, Contact: studentID, ContactModel: models.RoleStudent, Timestamp: now})
	}
	if addedS {
		o.rt.PublishToUser(studentID, EventNewChat, NewChatEvent{ChatID: pair.ChatID, Contact: teacherID, ContactModel: models.RoleTeacher, Timestamp: now})
	}
	if created {
		o.publish(ctx, pair.ChatID, events.TypeChatCreated, pair)
		o.log.Infow("chat created", "chatId", pair.ChatID, "teacherId", teacherID, "studentId", studentID)
	}
	return &Conversation{ChatID: pair.ChatID, Created: created}, nil
}

type SendMessageInput struct {
	ChatID        string           `json:"chatId"`
	Sender        string           `json:"sender"`
	SenderModel   string           `json:"senderModel"`
	Receiver      string           `json:"receiver"`
	ReceiverModel string           `json:"receiverModel"`
	Message       string           `json:"message"`
	MediaURL      string           `json:"mediaUrl"`
	MediaType     models.MediaType `json:"mediaType"`
	ReplyTo       string           `json:"replyTo"`
}

// SendMessage stores a message and updates both chat lists: the sender's row is read,
// the receiver's row gains one unread message.
func (o *Orchestrator) SendMessage(ctx context.Context, in SendMessageInput) (*models.Message, error) {
	if in.ChatID == "" || in.Sender == "" || in.Receiver == "" || in.SenderModel == "" || in.ReceiverModel == "" {
		return nil, apperr.Validation("Missing required fields")
	}
	senderModel, ok1 := models.ParseRole(in.SenderModel)
	receiverModel, ok2 := models.ParseRole(in.ReceiverModel)
	if !ok1 || !ok2 || !senderModel.IsParticipant() || !receiverModel.IsParticipant() {
		return nil, apperr.Validation("Invalid senderModel or receiverModel")
	}
	if strings.TrimSpace(in.Message) == "" && in.MediaURL == "" {
		return nil, apperr.Validation("Message or media is required")
	}
	if in.MediaType != "" && !in.MediaType.Valid() {
		return nil, apperr.Validation("Invalid media type")
	}
	if !models.ValidID(in.ChatID) {
		return nil, apperr.Validation("Invalid chat ID")
	}
	if in.Sender == in.Receiver {
		return nil, apperr.Validation("Sender and receiver must differ")
	}

	msg := &models.Message{
		ID:            models.NewID(),
		ChatID:        in.ChatID,
		Sender:        in.Sender,
		SenderModel:   senderModel,
		Receiver:      in.Receiver,
		ReceiverModel: receiverModel,
		Message:       in.Message,
		MediaURL:      in.MediaURL,
		MediaType:     in.MediaType,
		ReplyTo:       in.ReplyTo,
		Reactions:     []models.Reaction{},
		Timestamp:     o.now(),
	}
	if err := o.messages.Insert(ctx, msg); err != nil {
		return nil, apperr.Persistence("Failed to save message", err)
	}

	preview := msg.Preview()
	senderRow := models.ChatEntry{ChatID: msg.ChatID, Contact: msg.Receiver, ContactModel: receiverModel, LastMessage: preview, Timestamp: msg.Timestamp}
	if _, err := o.chats.Touch(ctx, msg.Sender, senderModel, senderRow, models.SideSender); err != nil {
		o.log.Errorw("sender chat list update failed", "chatId", msg.ChatID, "userId", msg.Sender, "error", err)
	}
	receiverRow := models.ChatEntry{ChatID: msg.ChatID, Contact: msg.Sender, ContactModel: senderModel, LastMessage: preview, Timestamp: msg.Timestamp}
	if _, err := o.chats.Touch(ctx, msg.Receiver, receiverModel, receiverRow, models.SideReceiver); err != nil {
		o.log.Errorw("receiver chat list update failed", "chatId", msg.ChatID, "userId", msg.Receiver, "error", err)
	}

	o.rt.JoinRoom(msg.Sender, msg.ChatID)
	o.rt.JoinRoom(msg.Receiver, msg.ChatID)
	o.rt.PublishToUser(msg.Sender, EventReceiveMessage, msg)
	o.rt.PublishToUser(msg.Receiver, EventReceiveMessage, msg)
	o.rt.PublishToRoom(msg.ChatID, EventTyping, TypingEvent{UserID: msg.Sender, IsTyping: false})

	typ := models.NotifyMessage
	if msg.MediaURL != "" {
		typ = models.NotifyMedia
	}
	if msg.ReplyTo != "" {
		typ = models.NotifyReply
	}
	text := preview
	if text == "" {
		text = "New message"
	}
	o.notify(ctx, &models.Notification{
		UserID:      msg.Receiver,
		UserModel:   receiverModel,
		Type:        typ,
		Title:       "New message from " + string(senderModel),
		Message:     text,
		Sender:      msg.Sender,
		SenderModel: senderModel,
		Role:        receiverModel,
		Data:        &models.NotificationData{ChatID: msg.ChatID, MessageID: msg.ID, Sender: msg.Sender, SenderModel: senderModel},
	})

	o.publish(ctx, msg.ChatID, events.TypeMessageSent, msg)
	return msg, nil
}

// GetMessages returns the live messages of a chat, oldest first, and marks the chat
// read for userID.
func (o *Orchestrator) GetMessages(ctx context.Context, chatID, userID string) ([]models.Message, error) {
	if chatID == "" || !models.ValidID(chatID) {
		return nil, apperr.NotFound("Chat not found")
	}
	if userID == "" {
		return nil, apperr.Validation("User ID is required")
	}
	msgs, err := o.messages.ListByChat(ctx, chatID)
	if err != nil {
		return nil, apperr.Persistence("Failed to fetch messages", err)
	}
	if err := o.chats.ResetUnread(ctx, userID, chatID); err != nil {
		o.log.Warnw("unread reset failed", "chatId", chatID, "userId", userID, "error", err)
	}
	return msgs, nil
}

// AddReaction sets userID's reaction on a message, replacing any earlier one.
func (o *Orchestrator) AddReaction(ctx context.Context, messageID, userID, reaction string) (*models.Message, error) {
	if messageID == "" || userID == "" || reaction == "" {
		return nil, apperr.Validation("Missing required fields")
	}
	if !models.AllowedReactions[reaction] {
		return nil, apperr.Validation("Invalid reaction")
	}
	if !models.ValidID(messageID) {
		return nil, apperr.NotFound("Message not found")
	}

	target, err := o.messages.GetByID(ctx, messageID)
	if errors.Is(err, apperr.ErrNotFound) || (err == nil && target.IsDeleted) {
		return nil, apperr.NotFound("Message not found")
	}
	if err != nil {
		return nil, apperr.Persistence("Failed to add reaction", err)
	}
	if userID != target.Sender && userID != target.Receiver {
		return nil, apperr.Forbidden("Unauthorized")
	}

	msg, err := o.messages.SetReaction(ctx, messageID, userID, reaction)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound("Message not found")
	}
	if err != nil {
		return nil, apperr.Persistence("Failed to add reaction", err)
	}

	ev := ReactionEvent{MessageID: msg.ID, Reaction: reaction, UserID: userID}
	o.rt.PublishToUser(msg.Sender, EventMessageReaction, ev)
	o.rt.PublishToUser(msg.Receiver, EventMessageReaction, ev)

	if userID == msg.Receiver {
		reactor := msg.ReceiverModel
		o.notify(ctx, &models.Notification{
			UserID:      msg.Sender,
			UserModel:   msg.SenderModel,
			Type:        models.NotifyReaction,
			Title:       "New reaction from " + string(reactor),
			Message:     reaction + " on: " + msg.Preview(),
			Sender:      userID,
			SenderModel: reactor,
			Role:        msg.SenderModel,
			Data:        &models.NotificationData{ChatID: msg.ChatID, MessageID: msg.ID, Sender: userID, SenderModel: reactor},
		})
	}
	o.publish(ctx, msg.ChatID, events.TypeReactionAdded, ev)
	return msg, nil
}

// DeleteMessage soft-deletes a message. Only its sender may do so.
func (o *Orchestrator) DeleteMessage(ctx context.Context, messageID, userID string) (*models.Message, error) {
	if messageID == "" || userID == "" {
		return nil, apperr.Validation("Missing required fields")
	}
	if !models.ValidID(messageID) {
		return nil, apperr.NotFound("Message not found")
	}

	msg, err := o.messages.SoftDelete(ctx, messageID, userID)
	switch {
	case errors.Is(err, apperr.ErrForbidden):
		return nil, apperr.Forbidden("Unauthorized")
	case errors.Is(err, apperr.ErrNotFound):
		return nil, apperr.NotFound("Message not found")
	case err != nil:
		return nil, apperr.Persistence("Failed to delete message", err)
	}

	ev := DeletedEvent{MessageID: msg.ID}
	o.rt.PublishToUser(msg.Sender, EventMessageDeleted, ev)
	o.rt.PublishToUser(msg.Receiver, EventMessageDeleted, ev)
	o.publish(ctx, msg.ChatID, events.TypeMessageDeleted, ev)
	return msg, nil
}

func (o *Orchestrator) GetChatList(ctx context.Context, userID string) (*models.ChatList, error) {
	if userID == "" {
		return nil, apperr.Validation("User ID is required")
	}
	l, err := o.chats.Get(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence("Failed to fetch chat list", err)
	}
	return l, nil
}

// Typing relays a typing indicator to the conversation room. Nothing is stored.
func (o *Orchestrator) Typing(_ context.Context, chatID, userID string, isTyping bool) error {
	if chatID == "" || userID == "" {
		return apperr.Validation("Missing required fields")
	}
	o.rt.PublishToRoom(chatID, EventTyping, TypingEvent{UserID: userID, IsTyping: isTyping})
	return nil
}

// MarkSeen clears userID's unread counter for chatID and tells the room.
func (o *Orchestrator) MarkSeen(ctx context.Context, chatID, userID string) error {
	if chatID == "" || userID == "" {
		return apperr.Validation("Missing required fields")
	}
	if err := o.chats.ResetUnread(ctx, userID, chatID); err != nil {
		return apperr.Persistence("Failed to mark messages as seen", err)
	}
	o.rt.PublishToRoom(chatID, EventMessageSeen, SeenEvent{UserID: userID, ChatID: chatID})
	return nil
}

func (o *Orchestrator) notify(ctx context.Context, n *models.Notification) {
	if o.notifier == nil {
		return
	}
	created, err := o.notifier.Create(ctx, n)
	if err != nil {
		o.log.Warnw("notification failed", "userId", n.UserID, "type", n.Type, "error", err)
		return
	}
	o.rt.PublishToUser(created.UserID, EventNotification, created)
}

func (o *Orchestrator) publish(ctx context.Context, key, typ string, payload any) {
	if err := o.bus.Publish(ctx, key, typ, payload); err != nil {
		o.log.Warnw("event publish failed", "type", typ, "key", key, "error", err)
	}
}
