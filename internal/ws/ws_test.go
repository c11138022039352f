package ws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/fathima-sithara/school-chat/internal/apperr"
	"github.com/fathima-sithara/school-chat/internal/auth"
	"github.com/fathima-sithara/school-chat/internal/hub"
	"github.com/fathima-sithara/school-chat/internal/logger"
	"github.com/fathima-sithara/school-chat/internal/models"
	"github.com/fathima-sithara/school-chat/internal/repository/memory"
	"github.com/fathima-sithara/school-chat/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

func drain(c *hub.Client) []frame {
	var out []frame
	for {
		select {
		case b, ok := <-c.Send():
			if !ok {
				return out
			}
			var f frame
			_ = json.Unmarshal(b, &f)
			out = append(out, f)
		default:
			return out
		}
	}
}

func ofType(fs []frame, typ string) []frame {
	var out []frame
	for _, f := range fs {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

func ack(t *testing.T, fs []frame) Ack {
	t.Helper()
	acks := ofType(fs, evAck)
	require.Len(t, acks, 1)
	var a Ack
	require.NoError(t, json.Unmarshal(acks[0].Payload, &a))
	return a
}

type tokens map[string]auth.Identity

func (v tokens) Validate(token string) (auth.Identity, error) {
	id, ok := v[token]
	if !ok {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return id, nil
}

var (
	teacherID = models.NewID()
	studentID = models.NewID()
)

type rig struct {
	h       *Handler
	chatID  string
	teacher *hub.Client
	student *hub.Client
	notes   *memory.NotificationStore
}

func newRig(t *testing.T, rps int) *rig {
	t.Helper()
	log := logger.Nop()
	chats := memory.NewChatListStore()
	notes := memory.NewNotificationStore()
	hb := hub.New(chats, nil, nil, log)
	orch := service.NewOrchestrator(memory.NewMessageStore(), chats, service.NewDispatcher(notes, nil, log), hb, nil, log)
	h := NewHandler(hb, orch, tokens{"t": {UserID: teacherID, Role: models.RoleTeacher}}, Settings{RatePerSecond: rps}, log)

	conv, err := orch.InitiateConversation(context.Background(), teacherID, studentID)
	require.NoError(t, err)

	r := &rig{h: h, chatID: conv.ChatID, notes: notes}
	r.teacher = hub.NewClient(teacherID, models.RoleTeacher, 64, rps)
	r.student = hub.NewClient(studentID, models.RoleStudent, 64, rps)
	require.NoError(t, hb.Register(context.Background(), r.teacher))
	require.NoError(t, hb.Register(context.Background(), r.student))
	return r
}

func (r *rig) send(c *hub.Client, raw string) {
	r.h.handle(context.Background(), c, []byte(raw))
}

func TestAuthenticate(t *testing.T) {
	h := NewHandler(nil, nil, tokens{
		"t":       {UserID: "u1", Role: models.RoleTeacher},
		"noRole":  {UserID: "u2"},
		"student": {UserID: "u3", Role: models.RoleStudent},
	}, Settings{}, logger.Nop())

	role, err := h.authenticate("u1", "teacher", "t")
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, role)

	role, err = h.authenticate("u2", "Student", "noRole")
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, role)

	rejects := [][3]string{
		{"", "Teacher", "t"},
		{"u1", "", "t"},
		{"u1", "Teacher", ""},
		{"u1", "Admin", "t"},
		{"u1", "Teacher", "bogus"},
		{"someone-else", "Teacher", "t"},
		{"u3", "Teacher", "student"},
	}
	for _, r := range rejects {
		_, err := h.authenticate(r[0], r[1], r[2])
		assert.True(t, errors.Is(err, apperr.ErrUnauthenticated), "%v", r)
	}
}

func TestWelcomeListsJoinedRooms(t *testing.T) {
	r := newRig(t, 0)

	r.h.welcome(r.teacher)
	fs := ofType(drain(r.teacher), evConnected)
	require.Len(t, fs, 1)
	var got Connected
	require.NoError(t, json.Unmarshal(fs[0].Payload, &got))
	assert.Equal(t, Connected{UserID: teacherID, Rooms: []string{r.chatID}}, got)

	loner := hub.NewClient(models.NewID(), models.RoleStudent, 8, 0)
	require.NoError(t, r.h.hub.Register(context.Background(), loner))
	r.h.welcome(loner)
	fs = ofType(drain(loner), evConnected)
	require.Len(t, fs, 1)
	require.NoError(t, json.Unmarshal(fs[0].Payload, &got))
	assert.Empty(t, got.Rooms)
}

func TestSendMessageEvent(t *testing.T) {
	r := newRig(t, 50)
	drain(r.teacher)
	drain(r.student)

	// sender identity in the payload is ignored
	r.send(r.teacher, `{"type":"sendMessage","id":"1","payload":{"chatId":"`+r.chatID+`","sender":"spoof","receiver":"`+studentID+`","receiverModel":"Student","message":"hi"}}`)

	tf := drain(r.teacher)
	a := ack(t, tf)
	assert.True(t, a.Success)
	assert.Equal(t, "1", a.ID)
	var msg models.Message
	raw, _ := json.Marshal(a.Data)
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, teacherID, msg.Sender)
	assert.Equal(t, models.RoleTeacher, msg.SenderModel)
	assert.Len(t, ofType(tf, "receiveMessage"), 1)

	sf := drain(r.student)
	assert.Len(t, ofType(sf, "receiveMessage"), 1)
	assert.Len(t, ofType(sf, "notification"), 1)
	assert.Len(t, ofType(sf, "typing"), 1)
	assert.Empty(t, ofType(sf, evAck))
}

func TestFailuresGetAckAndErrorEvent(t *testing.T) {
	r := newRig(t, 50)
	drain(r.teacher)

	r.send(r.teacher, `{"type":"sendMessage","id":"2","payload":{"chatId":"`+r.chatID+`","receiver":"`+studentID+`","receiverModel":"Student"}}`)
	fs := drain(r.teacher)
	a := ack(t, fs)
	assert.False(t, a.Success)
	assert.Equal(t, "Message or media is required", a.Error)
	errs := ofType(fs, evError)
	require.Len(t, errs, 1)
	assert.JSONEq(t, `{"message":"Message or media is required"}`, string(errs[0].Payload))

	r.send(r.teacher, `{"type":"sendMedia","id":"3","payload":{"chatId":"`+r.chatID+`","receiver":"`+studentID+`","receiverModel":"Student","message":"x"}}`)
	assert.Equal(t, "Media URL is required", ack(t, drain(r.teacher)).Error)

	r.send(r.teacher, `{"type":"dance","id":"4"}`)
	assert.False(t, ack(t, drain(r.teacher)).Success)

	r.send(r.teacher, `not json`)
	fs = drain(r.teacher)
	assert.Empty(t, ofType(fs, evAck))
	assert.Len(t, ofType(fs, evError), 1)
}

func TestReactionDeleteAndReads(t *testing.T) {
	r := newRig(t, 50)
	r.send(r.teacher, `{"type":"sendMessage","id":"1","payload":{"chatId":"`+r.chatID+`","receiver":"`+studentID+`","receiverModel":"Student","message":"quiz"}}`)
	var msg models.Message
	raw, _ := json.Marshal(ack(t, drain(r.teacher)).Data)
	require.NoError(t, json.Unmarshal(raw, &msg))
	drain(r.student)

	r.send(r.student, `{"type":"addReaction","id":"r","payload":{"messageId":"`+msg.ID+`","reaction":"👍"}}`)
	assert.True(t, ack(t, drain(r.student)).Success)
	assert.Len(t, ofType(drain(r.teacher), "messageReaction"), 1)

	r.send(r.student, `{"type":"deleteMessage","id":"d","payload":{"messageId":"`+msg.ID+`"}}`)
	a := ack(t, drain(r.student))
	assert.False(t, a.Success)
	assert.Equal(t, "Unauthorized", a.Error)

	r.send(r.student, `{"type":"getMessages","id":"g","payload":{"chatId":"`+r.chatID+`"}}`)
	a = ack(t, drain(r.student))
	require.True(t, a.Success)
	assert.Len(t, a.Data, 1)

	r.send(r.teacher, `{"type":"deleteMessage","id":"d2","payload":{"messageId":"`+msg.ID+`"}}`)
	assert.True(t, ack(t, drain(r.teacher)).Success)
	assert.Len(t, ofType(drain(r.student), "messageDeleted"), 1)
}

func TestTypingAndSeen(t *testing.T) {
	r := newRig(t, 50)
	drain(r.teacher)
	drain(r.student)

	r.send(r.student, `{"type":"typing","id":"t","payload":{"chatId":"`+r.chatID+`","isTyping":true}}`)
	assert.True(t, ack(t, drain(r.student)).Success)
	typing := ofType(drain(r.teacher), "typing")
	require.Len(t, typing, 1)
	assert.JSONEq(t, `{"userId":"`+studentID+`","isTyping":true}`, string(typing[0].Payload))

	r.send(r.student, `{"type":"markSeen","id":"s","payload":{"chatId":"`+r.chatID+`"}}`)
	assert.True(t, ack(t, drain(r.student)).Success)
	assert.Len(t, ofType(drain(r.teacher), "messageSeen"), 1)

	r.send(r.student, `{"type":"typing","id":"t2","payload":{}}`)
	assert.False(t, ack(t, drain(r.student)).Success)
}

func TestRateLimitedEvents(t *testing.T) {
	r := newRig(t, 1)
	drain(r.student)

	r.send(r.student, `{"type":"typing","id":"a","payload":{"chatId":"`+r.chatID+`","isTyping":true}}`)
	assert.True(t, ack(t, drain(r.student)).Success)

	r.send(r.student, `{"type":"typing","id":"b","payload":{"chatId":"`+r.chatID+`","isTyping":false}}`)
	a := ack(t, drain(r.student))
	assert.False(t, a.Success)
	assert.Equal(t, "Too many requests", a.Error)
}
